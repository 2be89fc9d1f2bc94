package objectstore_test

import (
	"errors"
	"testing"

	"pictor/internal/services/objectstore"

	"github.com/aws/smithy-go"
)

type apiError struct {
	code string
}

func (e *apiError) Error() string                 { return e.code }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.code }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

func TestIsPermanent(t *testing.T) {
	cases := []struct {
		err       error
		permanent bool
	}{
		{&apiError{code: "AccessDenied"}, true},
		{&apiError{code: "NoSuchBucket"}, true},
		{&apiError{code: "SignatureDoesNotMatch"}, true},
		{&apiError{code: "SlowDown"}, false},
		{&apiError{code: "InternalError"}, false},
		{errors.New("connection reset"), false},
	}
	for _, tc := range cases {
		if got := objectstore.IsPermanent(tc.err); got != tc.permanent {
			t.Errorf("IsPermanent(%v) = %v, want %v", tc.err, got, tc.permanent)
		}
	}
}

func TestKeyJoin(t *testing.T) {
	cases := []struct {
		parts []string
		want  string
	}{
		{[]string{"origin", "obj1", "0001.jp2"}, "origin/obj1/0001.jp2"},
		{[]string{"origin/", "/obj1"}, "origin/obj1"},
		{[]string{"", "manifest.json"}, "manifest.json"},
	}
	for _, tc := range cases {
		if got := objectstore.KeyJoin(tc.parts...); got != tc.want {
			t.Errorf("KeyJoin(%v) = %q, want %q", tc.parts, got, tc.want)
		}
	}
}
