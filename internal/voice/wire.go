package voice

import "encoding/json"

// ── Outbound message types ─────────────────────────────────────────────────────

type audioMessage struct {
	Type string `json:"type"`
	Data string `json:"data"` // base64-encoded 16-bit PCM frame
}

type contextMessage struct {
	Type       string      `json:"type"`
	Location   *Location   `json:"location,omitempty"`
	TimePeriod *TimePeriod `json:"timePeriod,omitempty"`
}

type phaseMessage struct {
	Type  string `json:"type"`
	Phase string `json:"phase"`
}

type sessionStartMessage struct {
	Type       string      `json:"type"`
	TimePeriod *TimePeriod `json:"timePeriod,omitempty"`
}

type confirmExplorationMessage struct {
	Type string `json:"type"`
}

type interruptMessage struct {
	Type string `json:"type"`
}

// Location identifies a place on the globe the session is exploring.
type Location struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Name string  `json:"name"`
}

// TimePeriod is the historical era the session is set in.
type TimePeriod struct {
	Label string `json:"label"`
	Year  int    `json:"year"`
}

// ── Inbound message envelope ───────────────────────────────────────────────────

// serverMessage is the union of every inbound message shape. One flat struct
// keyed by Type keeps per-message decoding to a single json.Unmarshal.
type serverMessage struct {
	Type string `json:"type"`

	// response_start / audio / guide_text / word_timestamp
	ResponseID string `json:"responseId,omitempty"`

	// audio
	Data string `json:"data,omitempty"` // base64-encoded 16-bit PCM chunk

	// transcript / guide_text / fact / word_timestamp
	Text string `json:"text,omitempty"`

	// transcript
	Partial bool `json:"partial,omitempty"`

	// fact
	Category string `json:"category,omitempty"`

	// world_status
	Status   string `json:"status,omitempty"`
	WorldID  string `json:"worldId,omitempty"`
	SplatURL string `json:"splatUrl,omitempty"`

	// music — the backend attaches free-form playback hints alongside the
	// track URL; they are passed through undecoded.
	TrackURL string          `json:"trackUrl,omitempty"`
	Extra    json.RawMessage `json:"extra,omitempty"`

	// suggested_location
	Lat  float64 `json:"lat,omitempty"`
	Lng  float64 `json:"lng,omitempty"`
	Name string  `json:"name,omitempty"`
	Year int     `json:"year,omitempty"`

	// session_summary
	UserProfile      string `json:"userProfile,omitempty"`
	WorldDescription string `json:"worldDescription,omitempty"`

	// word_timestamp
	StartS float64 `json:"startS,omitempty"`
	StopS  float64 `json:"stopS,omitempty"`
}
