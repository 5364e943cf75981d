// Package youtubetest provides an in-process fake of the YouTube Data API and
// watch page for tests.
package youtubetest

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Video is a fixture video.
type Video struct {
	ID           string
	ChannelID    string
	ChannelTitle string
	Title        string
	Description  string
	Tags         []string
	PublishedAt  time.Time
	Duration     string // ISO 8601, e.g. PT10M
	Views        int64
	Likes        *int64
	Comments     *int64
	Language     string
	Captions     []Caption
	Transcript   []string // timed text lines
	TopComments  []string // HTML comment bodies
}

// Caption is a fixture caption track.
type Caption struct {
	Language string
	Kind     string // standard or asr
}

// Channel is a fixture channel.
type Channel struct {
	ID          string
	Title       string
	Subscribers int64
	Hidden      bool
	Views       int64
	VideoCount  int64
	CreatedAt   time.Time
}

type failRule struct {
	skip   int
	count  int // <0 forever
	status int
	reason string
}

// Server is the fake. Fixtures may be added before requests are made.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	videos   []Video
	channels map[string]Channel
	calls    map[string]int
	keys     map[string]int
	fails    map[string]*failRule
	delays   map[string]time.Duration
	badKeys  map[string]bool
}

// NewServer starts a fake server; close it with Close.
func NewServer() *Server {
	s := &Server{
		channels: make(map[string]Channel),
		calls:    make(map[string]int),
		keys:     make(map[string]int),
		fails:    make(map[string]*failRule),
		delays:   make(map[string]time.Duration),
		badKeys:  make(map[string]bool),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// AddVideo registers a video fixture. Search returns videos in insertion order.
func (s *Server) AddVideo(v Video) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos = append(s.videos, v)
}

// AddChannel registers a channel fixture.
func (s *Server) AddChannel(c Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[c.ID] = c
}

// Fail makes count calls to endpoint fail after skip successful ones.
// count < 0 fails forever. reason is the Google error reason.
func (s *Server) Fail(endpoint string, skip, count, status int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[endpoint] = &failRule{skip: skip, count: count, status: status, reason: reason}
}

// Delay slows every call to endpoint.
func (s *Server) Delay(endpoint string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[endpoint] = d
}

// RejectKey makes every request with key fail as an invalid credential.
func (s *Server) RejectKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.badKeys[key] = true
}

// Calls returns how many requests endpoint received.
func (s *Server) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

// KeyCalls returns how many API requests used key.
func (s *Server) KeyCalls(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[key]
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	endpoint := strings.Trim(r.URL.Path, "/")
	q := r.URL.Query()

	s.mu.Lock()
	s.calls[endpoint]++
	if key := q.Get("key"); key != "" {
		s.keys[key]++
	}
	delay := s.delays[endpoint]
	bad := s.badKeys[q.Get("key")]
	var fail *failRule
	if rule := s.fails[endpoint]; rule != nil {
		switch {
		case rule.skip > 0:
			rule.skip--
		case rule.count != 0:
			if rule.count > 0 {
				rule.count--
			}
			fail = &failRule{status: rule.status, reason: rule.reason}
		}
	}
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if bad {
		writeError(w, http.StatusBadRequest, "keyInvalid", "API key not valid. Please pass a valid API key.")
		return
	}
	if fail != nil {
		writeError(w, fail.status, fail.reason, "injected failure")
		return
	}

	switch endpoint {
	case "search":
		s.search(w, q)
	case "videos":
		s.videosList(w, q)
	case "channels":
		s.channelsList(w, q)
	case "commentThreads":
		s.comments(w, q)
	case "captions":
		s.captions(w, q)
	case "watch":
		s.watch(w, q)
	case "timedtext":
		s.timedText(w, q)
	default:
		http.NotFound(w, r)
	}
}

func writeError(w http.ResponseWriter, status int, reason, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": msg,
			"errors":  []map[string]string{{"reason": reason, "domain": "youtube.quota", "message": msg}},
		},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) findVideo(id string) (Video, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.videos {
		if v.ID == id {
			return v, true
		}
	}
	return Video{}, false
}

func (s *Server) search(w http.ResponseWriter, q map[string][]string) {
	get := func(k string) string {
		if vs := q[k]; len(vs) > 0 {
			return vs[0]
		}
		return ""
	}
	words := strings.Fields(strings.ToLower(get("q")))
	pageSize, _ := strconv.Atoi(get("maxResults"))
	if pageSize <= 0 {
		pageSize = 5
	}
	offset, _ := strconv.Atoi(get("pageToken"))

	s.mu.Lock()
	var hits []string
	for _, v := range s.videos {
		text := strings.ToLower(v.Title + " " + v.Description + " " + strings.Join(v.Tags, " "))
		for _, w := range words {
			if strings.Contains(text, w) {
				hits = append(hits, v.ID)
				break
			}
		}
	}
	s.mu.Unlock()

	end := min(offset+pageSize, len(hits))
	items := []map[string]any{}
	if offset < len(hits) {
		for _, id := range hits[offset:end] {
			items = append(items, map[string]any{"id": map[string]string{"kind": "youtube#video", "videoId": id}})
		}
	}
	resp := map[string]any{"items": items}
	if end < len(hits) {
		resp["nextPageToken"] = strconv.Itoa(end)
	}
	writeJSON(w, resp)
}

func count(n int64) string { return strconv.FormatInt(n, 10) }

func (s *Server) videosList(w http.ResponseWriter, q map[string][]string) {
	var ids []string
	if vs := q["id"]; len(vs) > 0 {
		ids = strings.Split(vs[0], ",")
	}
	items := []map[string]any{}
	for _, id := range ids {
		v, ok := s.findVideo(id)
		if !ok {
			continue
		}
		stats := map[string]any{"viewCount": count(v.Views)}
		if v.Likes != nil {
			stats["likeCount"] = count(*v.Likes)
		}
		if v.Comments != nil {
			stats["commentCount"] = count(*v.Comments)
		}
		items = append(items, map[string]any{
			"id": v.ID,
			"snippet": map[string]any{
				"publishedAt":          v.PublishedAt.UTC().Format(time.RFC3339),
				"channelId":            v.ChannelID,
				"channelTitle":         v.ChannelTitle,
				"title":                v.Title,
				"description":          v.Description,
				"tags":                 v.Tags,
				"defaultAudioLanguage": v.Language,
				"thumbnails": map[string]any{
					"high": map[string]string{"url": "https://i.ytimg.com/vi/" + v.ID + "/hqdefault.jpg"},
				},
			},
			"contentDetails": map[string]any{"duration": v.Duration},
			"statistics":     stats,
		})
	}
	writeJSON(w, map[string]any{"items": items})
}

func (s *Server) channelsList(w http.ResponseWriter, q map[string][]string) {
	var ids []string
	if vs := q["id"]; len(vs) > 0 {
		ids = strings.Split(vs[0], ",")
	}
	items := []map[string]any{}
	s.mu.Lock()
	for _, id := range ids {
		c, ok := s.channels[id]
		if !ok {
			continue
		}
		items = append(items, map[string]any{
			"id": c.ID,
			"snippet": map[string]any{
				"title":       c.Title,
				"publishedAt": c.CreatedAt.UTC().Format(time.RFC3339),
			},
			"statistics": map[string]any{
				"viewCount":             count(c.Views),
				"subscriberCount":       count(c.Subscribers),
				"hiddenSubscriberCount": c.Hidden,
				"videoCount":            count(c.VideoCount),
			},
		})
	}
	s.mu.Unlock()
	writeJSON(w, map[string]any{"items": items})
}

func (s *Server) comments(w http.ResponseWriter, q map[string][]string) {
	v, ok := s.findVideo(first(q["videoId"]))
	if !ok {
		writeError(w, http.StatusNotFound, "videoNotFound", "video not found")
		return
	}
	items := []map[string]any{}
	for _, c := range v.TopComments {
		items = append(items, map[string]any{
			"snippet": map[string]any{
				"topLevelComment": map[string]any{
					"snippet": map[string]any{"textDisplay": c, "likeCount": 1},
				},
			},
		})
	}
	writeJSON(w, map[string]any{"items": items})
}

func (s *Server) captions(w http.ResponseWriter, q map[string][]string) {
	v, ok := s.findVideo(first(q["videoId"]))
	if !ok {
		writeError(w, http.StatusNotFound, "videoNotFound", "video not found")
		return
	}
	items := []map[string]any{}
	for i, c := range v.Captions {
		items = append(items, map[string]any{
			"id":      fmt.Sprintf("%s-%d", v.ID, i),
			"snippet": map[string]any{"language": c.Language, "trackKind": c.Kind, "name": ""},
		})
	}
	writeJSON(w, map[string]any{"items": items})
}

func (s *Server) watch(w http.ResponseWriter, q map[string][]string) {
	v, ok := s.findVideo(first(q["v"]))
	if !ok {
		http.NotFound(w, nil)
		return
	}
	var tracks []map[string]string
	for _, c := range v.Captions {
		kind := ""
		if c.Kind == "asr" {
			kind = "asr"
		}
		tracks = append(tracks, map[string]string{
			"baseUrl":      s.URL + "/timedtext?v=" + v.ID + "&lang=" + c.Language,
			"languageCode": c.Language,
			"kind":         kind,
		})
	}
	player := map[string]any{"playabilityStatus": map[string]string{"status": "OK"}}
	if len(tracks) > 0 {
		player["captions"] = map[string]any{
			"playerCaptionsTracklistRenderer": map[string]any{"captionTracks": tracks},
		}
	}
	raw, _ := json.Marshal(player)
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, `<!doctype html><html><head><title>%s</title></head><body>
<script>var ytcfg = {"x": "{not json}"};</script>
<script>var ytInitialPlayerResponse = %s;var meta = {};</script>
</body></html>`, html.EscapeString(v.Title), raw)
}

func (s *Server) timedText(w http.ResponseWriter, q map[string][]string) {
	v, ok := s.findVideo(first(q["v"]))
	if !ok {
		http.NotFound(w, nil)
		return
	}
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="utf-8" ?><transcript>`)
	for i, line := range v.Transcript {
		fmt.Fprintf(&sb, `<text start="%d" dur="2">%s</text>`, i*2, html.EscapeString(line))
	}
	sb.WriteString(`</transcript>`)
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(sb.String()))
}

func first(vs []string) string {
	if len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Int64 returns a pointer to n for optional counters.
func Int64(n int64) *int64 { return &n }
