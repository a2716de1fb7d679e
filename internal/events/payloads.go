package events

// RunPayload is the JSON body of run.* events.
type RunPayload struct {
	RunID    string   `json:"run_id"`
	Folders  []string `json:"folders,omitempty"`
	Commands []string `json:"commands,omitempty"`
	Status   string   `json:"status,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// ResultPayload is the JSON body of result.recorded events.
type ResultPayload struct {
	RunID   string `json:"run_id,omitempty"`
	Folder  string `json:"folder"`
	Command string `json:"command"`
	Count   int    `json:"count"`
}
