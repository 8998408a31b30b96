package apierror_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/valk-sh/go-scorecache/apierror"
)

func TestNew(t *testing.T) {
	err := apierror.New(errors.New("test error"), 0)
	require.Equal(t, "test error", err.Error())

	err = apierror.New(nil, http.StatusNotFound)
	require.Equal(t, fmt.Sprintf("%d %s", http.StatusNotFound, http.StatusText(http.StatusNotFound)), err.Error())

	err = apierror.New(nil, 0)
	require.Equal(t, "", err.Error())

	err = apierror.New(nil, 999)
	require.Equal(t, "999", err.Error())
}

func TestFromResponse(t *testing.T) {
	err := apierror.FromResponse(0, []byte(" archive unavailable\n"))
	require.Equal(t, "archive unavailable", err.Error())

	err = apierror.FromResponse(http.StatusBadGateway, []byte(" archive unavailable\n"))
	require.Equal(t, "archive unavailable", err.Error())

	ae, ok := err.(*apierror.Error)
	require.True(t, ok)
	require.Equal(t, http.StatusBadGateway, ae.Status())

	err = apierror.FromResponse(http.StatusBadGateway, nil)
	require.Equal(t, fmt.Sprintf("%d %s", http.StatusBadGateway, http.StatusText(http.StatusBadGateway)), err.Error())
}

func TestStatusOf(t *testing.T) {
	require.Equal(t, http.StatusNotFound, apierror.StatusOf(apierror.New(errors.New("gone"), http.StatusNotFound)))
	require.Equal(t, http.StatusBadRequest, apierror.StatusOf(fmt.Errorf("wrapped: %w", apierror.New(nil, http.StatusBadRequest))))
	require.Equal(t, http.StatusInternalServerError, apierror.StatusOf(errors.New("plain")))
	require.Equal(t, http.StatusInternalServerError, apierror.StatusOf(apierror.New(errors.New("no status"), 0)))
}

func TestEncodeDecode(t *testing.T) {
	data := apierror.EncodeError(nil)
	require.Nil(t, data)

	derr := apierror.DecodeError(nil)
	require.Nil(t, derr)

	derr = apierror.DecodeError([]byte("hello world"))
	require.ErrorContains(t, derr, "cannot decode error message")

	err := apierror.New(errors.New("unknown id"), http.StatusNotFound)
	data = apierror.EncodeError(err)

	derr = apierror.DecodeError(data)
	require.Equal(t, "unknown id", derr.Error())

	ae, ok := derr.(*apierror.Error)
	require.True(t, ok)
	require.Equal(t, http.StatusNotFound, ae.Status())
	require.Equal(t, fmt.Sprintf("%d %s: unknown id", http.StatusNotFound, http.StatusText(http.StatusNotFound)), ae.Text())

	someErr := errors.New("some error")
	data = apierror.EncodeError(someErr)

	derr = apierror.DecodeError(data)
	require.Equal(t, "some error", derr.Error())
	_, ok = derr.(*apierror.Error)
	require.False(t, ok)
}

func TestWrite(t *testing.T) {
	rec := httptest.NewRecorder()
	apierror.Write(rec, apierror.New(errors.New("unable to parse ID"), http.StatusBadRequest))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	derr := apierror.DecodeError(rec.Body.Bytes())
	require.EqualError(t, derr, "unable to parse ID")
	require.Equal(t, http.StatusBadRequest, apierror.StatusOf(derr))
}

func TestUnwrap(t *testing.T) {
	errEOF := errors.New("end of file")
	err := apierror.New(errEOF, 0)
	require.ErrorIs(t, err, errEOF)
}
