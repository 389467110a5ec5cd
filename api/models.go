package api

import "time"

// BuildSummary is the JSON view of one registered Build.
type BuildSummary struct {
	ID          string    `json:"id"`
	Function    string    `json:"function"`
	CreatedAt   time.Time `json:"createdAt"`
	Done        bool      `json:"done"`
	EntryOffset uint32    `json:"entryOffset,omitempty"`
	ByteSize    int       `json:"byteSize,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// BuildListResponse lists every build the registry currently holds.
type BuildListResponse struct {
	Builds []BuildSummary `json:"builds"`
}

// BuildEventResponse is the JSON view of one trace.BuildEvent.
type BuildEventResponse struct {
	Sequence uint64 `json:"sequence"`
	Function string `json:"function"`
	Kind     string `json:"kind"`
	Mnemonic string `json:"mnemonic,omitempty"`
	Offset   uint32 `json:"offset"`
	Detail   string `json:"detail,omitempty"`
	Length   int    `json:"length,omitempty"`
}

// BuildTraceResponse is the full event list for one build.
type BuildTraceResponse struct {
	BuildID string               `json:"buildId"`
	Events  []BuildEventResponse `json:"events"`
}

// BuildStatsResponse summarizes one build's trace.Stats.
type BuildStatsResponse struct {
	BuildID           string          `json:"buildId"`
	TotalInstructions uint64          `json:"totalInstructions"`
	TotalBytes        uint64          `json:"totalBytes"`
	TotalStackSlots   uint64          `json:"totalStackSlots"`
	LabelBinds        uint64          `json:"labelBinds"`
	TopMnemonics      []MnemonicCount `json:"topMnemonics"`
}

// MnemonicCount is one row of BuildStatsResponse.TopMnemonics.
type MnemonicCount struct {
	Mnemonic string `json:"mnemonic"`
	Count    uint64 `json:"count"`
	Bytes    uint64 `json:"bytes"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
