package instagram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/instasave/internal/media"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://instagram.com/p/ABC123/", true},
		{"http://www.instagram.com/reel/XYZ", true},
		{"https://www.instagram.com/tv/CODE?igsh=1", true},
		{"HTTPS://WWW.INSTAGRAM.COM/P/ABC/", true},
		{"https://example.com/p/ABC123", false},
		{"https://instagram.com/stories/x", false},
		{"https://instagram.com.evil.net/p/ABC", false},
		{"ftp://instagram.com/p/ABC", false},
		{"https://m.instagram.com/p/ABC", false},
		{"instagram.com/p/ABC", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, Validate(tt.url))
		})
	}
}

func TestExtractShortcode(t *testing.T) {
	tests := []struct {
		url    string
		want   string
		wantOK bool
	}{
		{"https://instagram.com/p/ABC123/", "ABC123", true},
		{"https://www.instagram.com/reel/XYZ?utm_source=ig", "XYZ", true},
		{"https://instagram.com/tv/T1#frag", "T1", true},
		{"https://instagram.com/p/A_b-9&x=1", "A_b-9", true},
		{"https://instagram.com/explore/", "", false},
		{"https://instagram.com/p/", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, ok := ExtractShortcode(tt.url)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)

			// pure: same answer twice
			again, ok2 := ExtractShortcode(tt.url)
			assert.Equal(t, got, again)
			assert.Equal(t, ok, ok2)
		})
	}
}

func postReply(node map[string]interface{}) string {
	b, _ := json.Marshal(map[string]interface{}{
		"data":   map[string]interface{}{"xdt_shortcode_media": node},
		"status": "ok",
	})
	return string(b)
}

func newGraphQLServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/graphql/query", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "doc-1", r.PostForm.Get("doc_id"))
		assert.Equal(t, "tok", r.Header.Get("X-CSRFToken"))
		if c, err := r.Cookie("sessionid"); assert.NoError(t, err) {
			assert.Equal(t, "sid", c.Value)
		}

		var vars map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("variables")), &vars))

		switch vars["shortcode"] {
		case "PHOTO":
			w.Write([]byte(postReply(map[string]interface{}{
				"is_video": false, "display_url": "https://cdn.example/p.jpg",
			})))
		case "VIDEO":
			w.Write([]byte(postReply(map[string]interface{}{
				"is_video": true, "video_url": "https://cdn.example/v.mp4", "display_url": "https://cdn.example/thumb.jpg",
			})))
		case "SIDECAR":
			w.Write([]byte(postReply(map[string]interface{}{
				"__typename": "XDTGraphSidecar",
				"display_url": "https://cdn.example/cover.jpg",
				"edge_sidecar_to_children": map[string]interface{}{
					"edges": []interface{}{
						map[string]interface{}{"node": map[string]interface{}{
							"is_video": true, "video_url": "https://cdn.example/first.mp4",
						}},
					},
				},
			})))
		case "PRIVATE":
			w.Write([]byte(postReply(nil)))
		case "THROTTLED":
			w.Write([]byte(`{"status":"fail","message":"Please wait a few minutes"}`))
		case "MISSING":
			http.NotFound(w, r)
		case "FORBIDDEN":
			w.WriteHeader(http.StatusForbidden)
		case "BROKEN":
			w.WriteHeader(http.StatusBadGateway)
		case "GARBAGE":
			w.Write([]byte("<html>not json</html>"))
		}
	}))
}

func TestResolve(t *testing.T) {
	srv := newGraphQLServer(t)
	defer srv.Close()

	r := NewResolver(Endpoint{BaseURL: srv.URL, AppID: "app", Client: srv.Client()}, "doc-1")
	sess := &Session{Username: "u", CSRFToken: "tok", Cookies: map[string]string{"sessionid": "sid"}}

	tests := []struct {
		shortcode string
		want      media.Media
		wantErr   error
	}{
		{"PHOTO", media.NewPhoto("https://cdn.example/p.jpg"), nil},
		{"VIDEO", media.NewVideo("https://cdn.example/v.mp4"), nil},
		{"SIDECAR", media.NewVideo("https://cdn.example/first.mp4"), nil},
		{"PRIVATE", media.Media{}, ErrPrivateOrRemoved},
		{"THROTTLED", media.Media{}, ErrTransientNetwork},
		{"MISSING", media.Media{}, ErrNotFound},
		{"FORBIDDEN", media.Media{}, ErrPrivateOrRemoved},
		{"BROKEN", media.Media{}, ErrTransientNetwork},
		{"GARBAGE", media.Media{}, ErrTransientNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.shortcode, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), tt.shortcode, sess)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsResolutionError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveTransportError(t *testing.T) {
	r := NewResolver(Endpoint{BaseURL: "http://127.0.0.1:1"}, "doc")
	_, err := r.Resolve(context.Background(), "X", &Session{})
	require.ErrorIs(t, err, ErrTransientNetwork)
}

func TestMediaQueryCompiles(t *testing.T) {
	m, err := extractMedia(map[string]interface{}{"status": "ok"}, "X")
	assert.ErrorIs(t, err, ErrPrivateOrRemoved)
	assert.Equal(t, media.Media{}, m)

	_, err = extractMedia([]interface{}{"not", "an", "object"}, "X")
	assert.ErrorIs(t, err, ErrTransientNetwork)
	assert.False(t, strings.Contains(err.Error(), "panic"))
}
