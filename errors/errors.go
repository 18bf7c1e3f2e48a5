// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package errors defines the error hierarchy the facade reports through.
// Backend failures are wrapped and re-raised as GenericConfig; user
// callback failures are never surfaced through this hierarchy at all,
// they are logged and swallowed at the dispatch boundary.
package errors

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// ConfigError is the abstract parent of every error the facade returns.
type ConfigError interface {
	error
	configError()
}

type base struct {
	msg   string
	cause error
}

func (b *base) configError() {}

func (b *base) Error() string {
	if b.cause != nil {
		return fmt.Sprintf("%s: %s", b.msg, b.cause)
	}
	return b.msg
}

func (b *base) Unwrap() error { return b.cause }

// GenericConfig wraps a backend failure, plugin load failure, invalid
// argument, or bad cast that has no more specific kind.
type GenericConfig struct{ base }

func NewGeneric(msg string) *GenericConfig {
	return &GenericConfig{base{msg: msg}}
}

// Wrap re-raises cause as a GenericConfig, prefixed with a context sentence,
// per the propagation policy in the error handling design.
func Wrap(cause error, context string) *GenericConfig {
	return &GenericConfig{base{msg: "failed to " + context, cause: pkgerrors.WithStack(cause)}}
}

// NotFound reports an absent class, object, or database name.
type NotFound struct{ base }

func NewNotFound(what string) *NotFound {
	return &NotFound{base{msg: "not found: " + what}}
}

// DeletedObject reports access to an object known to have been deleted.
type DeletedObject struct{ base }

func NewDeletedObject(class, uid string) *DeletedObject {
	return &DeletedObject{base{msg: fmt.Sprintf("object %s@%s has been deleted", uid, class)}}
}

// ConfigLoadError reports a plugin that could not be loaded or that lacks
// its required entry symbol.
type ConfigLoadError struct{ base }

func NewConfigLoadError(msg string, cause error) *ConfigLoadError {
	return &ConfigLoadError{base{msg: msg, cause: cause}}
}

// CommitFailed wraps a backend commit failure.
type CommitFailed struct{ base }

func NewCommitFailed(cause error) *CommitFailed {
	return &CommitFailed{base{msg: "commit failed", cause: cause}}
}

// Cause returns the deepest wrapped error.
func Cause(err error) error {
	return pkgerrors.Cause(err)
}
