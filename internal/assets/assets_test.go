package assets

import (
	"context"
	"errors"
	"testing"
)

type recordingUploader struct {
	data        []byte
	contentType string
}

func (r *recordingUploader) Upload(_ context.Context, data []byte, contentType string) (string, error) {
	r.data = data
	r.contentType = contentType
	return "https://cdn.example.com/img/1.png", nil
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	up := &recordingUploader{}

	tests := []struct {
		name    string
		up      Uploader
		image   string
		want    string
		wantErr error
	}{
		{name: "empty", up: up, image: "  ", want: ""},
		{name: "http reference passes through", up: nil, image: "https://img.example.com/a.jpg", want: "https://img.example.com/a.jpg"},
		{name: "data url uploaded", up: up, image: "data:image/png;base64,aGVsbG8=", want: "https://cdn.example.com/img/1.png"},
		{name: "data url without uploader", up: nil, image: "data:image/png;base64,aGVsbG8=", wantErr: ErrUploadDisabled},
		{name: "not an image", up: up, image: "data:text/plain;base64,aGVsbG8=", wantErr: ErrInvalidImage},
		{name: "bad base64", up: up, image: "data:image/png;base64,!!!", wantErr: ErrInvalidImage},
		{name: "other scheme", up: up, image: "ftp://example.com/a.png", wantErr: ErrInvalidImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(ctx, tt.up, tt.image)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}

	if string(up.data) != "hello" || up.contentType != "image/png" {
		t.Fatalf("uploader received %q (%s)", up.data, up.contentType)
	}
}
