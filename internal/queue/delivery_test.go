package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmobrien1/mdraft2/internal/model"
	"github.com/jmobrien1/mdraft2/internal/signing"
)

func TestNewDelivery(t *testing.T) {
	d, err := NewDelivery("http://api/tasks/process", Payload{DocumentID: "abc"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://api/tasks/process", d.URL)
	assert.JSONEq(t, `{"document_id":"abc"}`, string(d.Body))
	assert.Equal(t, "application/json", d.Headers["Content-Type"])
	assert.NotContains(t, d.Headers, signing.Header)
}

func TestNewDeliverySigned(t *testing.T) {
	signer := signing.NewSigner([]byte("s3cret"))
	d, err := NewDelivery("http://api/tasks/process", Payload{DocumentID: "abc"}, signer)
	require.NoError(t, err)
	assert.True(t, signer.Validate(d.Body, d.Headers[signing.Header]))
}

func TestNewDeliveryRequiresDocumentID(t *testing.T) {
	_, err := NewDelivery("http://api/tasks/process", Payload{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrValidation))
}

func TestHTTPDeliverer(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantErr   bool
		permanent bool
	}{
		{name: "ok", status: http.StatusOK},
		{name: "accepted", status: http.StatusAccepted},
		{name: "not found is permanent", status: http.StatusNotFound, wantErr: true, permanent: true},
		{name: "bad request is permanent", status: http.StatusBadRequest, wantErr: true, permanent: true},
		{name: "too many requests retries", status: http.StatusTooManyRequests, wantErr: true},
		{name: "server error retries", status: http.StatusInternalServerError, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotBody []byte
			var gotHeader string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				gotBody, _ = io.ReadAll(r.Body)
				gotHeader = r.Header.Get("Content-Type")
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			d, err := NewDelivery(srv.URL+"/tasks/process", Payload{DocumentID: "abc"}, nil)
			require.NoError(t, err)
			err = NewHTTPDeliverer(srv.Client()).Deliver(context.Background(), d)
			if !tt.wantErr {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.permanent, errors.Is(err, ErrPermanent))
			}

			var p Payload
			require.NoError(t, json.Unmarshal(gotBody, &p))
			assert.Equal(t, "abc", p.DocumentID)
			assert.Equal(t, "application/json", gotHeader)
		})
	}
}

func TestHTTPDelivererTransportErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewHTTPDeliverer(nil).Deliver(context.Background(), Delivery{URL: url, Body: []byte(`{}`)})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrPermanent))
}
