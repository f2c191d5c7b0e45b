// Package require contains small test assertion helpers in the style used
// throughout the wazero test suite, avoiding a testify dependency in a
// package whose production code has none either.
package require

import (
	"fmt"
	"reflect"
	"testing"
)

// CapturePanic invokes fn and converts a panic, if any, into an error.
func CapturePanic(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case error:
				err = v
			default:
				err = fmt.Errorf("%v", v)
			}
		}
	}()
	fn()
	return
}

func fail(t *testing.T, formatWithArgs ...interface{}) {
	t.Helper()
	if len(formatWithArgs) == 0 {
		t.Fatal("failed")
		return
	}
	format, ok := formatWithArgs[0].(string)
	if !ok || len(formatWithArgs) == 1 {
		t.Fatalf("failed: %s", fmt.Sprint(formatWithArgs...))
		return
	}
	t.Fatalf("failed: "+format, formatWithArgs[1:]...)
}

// Equal fails the test if want != got, using reflect.DeepEqual for
// non-comparable types.
func Equal(t *testing.T, want, got interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if !reflect.DeepEqual(want, got) {
		fail(t, append([]interface{}{"expected %#v, but found %#v", want, got}, msgAndArgs...)...)
	}
}

// NotEqual fails the test if want == got.
func NotEqual(t *testing.T, want, got interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if reflect.DeepEqual(want, got) {
		fail(t, append([]interface{}{"expected values to differ, but both were %#v", got}, msgAndArgs...)...)
	}
}

// True fails the test unless b is true.
func True(t *testing.T, b bool, msgAndArgs ...interface{}) {
	t.Helper()
	if !b {
		fail(t, append([]interface{}{"expected true"}, msgAndArgs...)...)
	}
}

// False fails the test unless b is false.
func False(t *testing.T, b bool, msgAndArgs ...interface{}) {
	t.Helper()
	if b {
		fail(t, append([]interface{}{"expected false"}, msgAndArgs...)...)
	}
}

// NoError fails the test if err != nil.
func NoError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err != nil {
		fail(t, append([]interface{}{"expected no error, but found %v", err}, msgAndArgs...)...)
	}
}

// Error fails the test if err == nil.
func Error(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err == nil {
		fail(t, append([]interface{}{"expected an error"}, msgAndArgs...)...)
	}
}

// ErrorContains fails the test unless err is non-nil and contains substr.
func ErrorContains(t *testing.T, err error, substr string) {
	t.Helper()
	if err == nil {
		fail(t, "expected an error containing %q", substr)
		return
	}
	if !containsString(err.Error(), substr) {
		fail(t, "expected error %q to contain %q", err.Error(), substr)
	}
}

func containsString(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return substr == ""
}

// Nil fails the test unless v is nil.
func Nil(t *testing.T, v interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if v != nil && !reflect.ValueOf(v).IsZero() {
		fail(t, append([]interface{}{"expected nil, but found %#v", v}, msgAndArgs...)...)
	}
}

// Zero fails the test unless v is the zero value of its type.
func Zero(t *testing.T, v interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if !reflect.ValueOf(v).IsZero() {
		fail(t, append([]interface{}{"expected zero value, but found %#v", v}, msgAndArgs...)...)
	}
}
