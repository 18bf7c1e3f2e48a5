package confdb

import (
	"fmt"
	"io"

	"github.com/online-daq/goconf/object"
)

// DumpProfile writes access-count profiling info when the environment
// variable named by EnvDebug is set. If it is set to the literal value
// "DEBUG", every accessed object is listed individually rather than just
// the aggregate counts.
func (c *Configuration) DumpProfile(w io.Writer) {
	if !c.profiling {
		return
	}
	c.implMu.Lock()
	hits, misses := c.oc.Stats()
	c.implMu.Unlock()

	fmt.Fprintf(w, "cache hits=%d misses=%d\n", hits, misses)
	if !c.profilingDebug {
		return
	}
	c.dumpAccessedObjects(w)
}

func (c *Configuration) dumpAccessedObjects(w io.Writer) {
	c.implMu.Lock()
	defer c.implMu.Unlock()
	c.oc.Walk(func(class, uid string, o *object.Impl) {
		if n := o.Accessed(); n > 0 {
			fmt.Fprintf(w, "  %s#%s accessed=%d\n", class, uid, n)
		}
	})
}
