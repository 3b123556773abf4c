package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/itchyny/gojq"

	. "github.com/roelfdiedericks/instasave/internal/logging"
	"github.com/roelfdiedericks/instasave/internal/media"
)

var (
	postURLRe   = regexp.MustCompile(`(?i)^https?://(www\.)?instagram\.com/(p|reel|tv)/`)
	shortcodeRe = regexp.MustCompile(`(?i)instagram\.com/(?:p|reel|tv)/([^/?#&]+)`)
)

// Validate reports whether raw is an http(s) Instagram post, reel or IGTV link.
func Validate(raw string) bool {
	return postURLRe.MatchString(raw)
}

// ExtractShortcode returns the post shortcode from a post URL.
func ExtractShortcode(raw string) (string, bool) {
	m := shortcodeRe.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// mediaQuery reduces a post-metadata reply to the fields the resolver needs.
// Carousels resolve to their first child.
const mediaQuery = `{
  status: .status,
  message: .message,
  media: (.data.xdt_shortcode_media
    | if . == null then null
      else (.edge_sidecar_to_children.edges[0].node // .)
        | {is_video: (.is_video // false), video_url: .video_url, display_url: .display_url}
      end)
}`

var mediaCode = mustCompile(mediaQuery)

func mustCompile(query string) *gojq.Code {
	parsed, err := gojq.Parse(query)
	if err != nil {
		panic(fmt.Sprintf("instagram: bad jq query: %v", err))
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		panic(fmt.Sprintf("instagram: jq compile: %v", err))
	}
	return code
}

// maxReplyBytes bounds the metadata reply we are willing to parse.
const maxReplyBytes = 8 << 20

// Resolver turns a shortcode into a direct media URL.
type Resolver struct {
	Endpoint
	docID string
}

// NewResolver uses docID as the persisted GraphQL query for post metadata.
func NewResolver(ep Endpoint, docID string) *Resolver {
	return &Resolver{Endpoint: ep, docID: docID}
}

// Resolve queries post metadata for shortcode using the given session.
// Errors wrap ErrNotFound, ErrPrivateOrRemoved or ErrTransientNetwork.
func (r *Resolver) Resolve(ctx context.Context, shortcode string, s *Session) (media.Media, error) {
	variables, err := json.Marshal(map[string]interface{}{
		"shortcode":               shortcode,
		"fetch_tagged_user_count": nil,
		"hoisted_comment_id":      nil,
		"hoisted_reply_id":        nil,
	})
	if err != nil {
		return media.Media{}, fmt.Errorf("%w: %v", ErrTransientNetwork, err)
	}
	form := url.Values{
		"doc_id":            {r.docID},
		"variables":         {string(variables)},
		"server_timestamps": {"true"},
	}

	req, err := r.newRequest(ctx, http.MethodPost, "/graphql/query", strings.NewReader(form.Encode()))
	if err != nil {
		return media.Media{}, fmt.Errorf("%w: %v", ErrTransientNetwork, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if s != nil {
		s.Apply(req, r.AppID)
	}

	resp, err := r.client().Do(req)
	if err != nil {
		return media.Media{}, fmt.Errorf("%w: %v", ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return media.Media{}, fmt.Errorf("%w: %s", ErrNotFound, shortcode)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return media.Media{}, fmt.Errorf("%w: %s (status %d)", ErrPrivateOrRemoved, shortcode, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return media.Media{}, fmt.Errorf("%w: status %d", ErrTransientNetwork, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return media.Media{}, fmt.Errorf("%w: %v", ErrTransientNetwork, err)
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return media.Media{}, fmt.Errorf("%w: undecodable reply: %v", ErrTransientNetwork, err)
	}

	m, err := extractMedia(doc, shortcode)
	if err != nil {
		return media.Media{}, err
	}
	L_debug("instagram: resolved", "shortcode", shortcode, "kind", m.Kind.String())
	return m, nil
}

func extractMedia(doc interface{}, shortcode string) (media.Media, error) {
	iter := mediaCode.Run(doc)
	v, ok := iter.Next()
	if !ok {
		return media.Media{}, fmt.Errorf("%w: empty reply", ErrTransientNetwork)
	}
	if err, isErr := v.(error); isErr {
		return media.Media{}, fmt.Errorf("%w: unexpected reply shape: %v", ErrTransientNetwork, err)
	}

	out, _ := v.(map[string]interface{})
	node, _ := out["media"].(map[string]interface{})
	if node == nil {
		// a "fail" status without data is throttling, not a missing post
		if status, _ := out["status"].(string); status == "fail" {
			msg, _ := out["message"].(string)
			return media.Media{}, fmt.Errorf("%w: %s", ErrTransientNetwork, msg)
		}
		return media.Media{}, fmt.Errorf("%w: %s", ErrPrivateOrRemoved, shortcode)
	}

	isVideo, _ := node["is_video"].(bool)
	if isVideo {
		if u, _ := node["video_url"].(string); u != "" {
			return media.NewVideo(u), nil
		}
		return media.Media{}, fmt.Errorf("%w: %s has no video url", ErrPrivateOrRemoved, shortcode)
	}
	if u, _ := node["display_url"].(string); u != "" {
		return media.NewPhoto(u), nil
	}
	return media.Media{}, fmt.Errorf("%w: %s has no display url", ErrPrivateOrRemoved, shortcode)
}
