package kernel

// MIMEBundle is a mime-type → representation map, as found in display_data
// and execute_result messages.
type MIMEBundle = map[string]any

// ConnectionInfo mirrors the contents of a Jupyter kernel connection
// file: the transport, ports, and HMAC signing key needed to dial a
// running kernel's five ZMQ channels.
type ConnectionInfo struct {
	Transport       string `json:"transport"`
	IP              string `json:"ip"`
	SignatureScheme string `json:"signature_scheme"`
	Key             string `json:"key"`
	ShellPort       int    `json:"shell_port"`
	IOPubPort       int    `json:"iopub_port"`
	StdinPort       int    `json:"stdin_port"`
	ControlPort     int    `json:"control_port"`
	HBPort          int    `json:"hb_port"`
}

// executeRequest is the content of an execute_request message.
type executeRequest struct {
	Code            string `json:"code"`
	Silent          bool   `json:"silent"`
	StoreHistory    bool   `json:"store_history"`
	UserExpressions any    `json:"user_expressions"`
	AllowStdin      bool   `json:"allow_stdin"`
	StopOnError     bool   `json:"stop_on_error"`
}

// ExecuteReply is the content of an execute_reply message.
type ExecuteReply struct {
	Status         string `json:"status"`
	ExecutionCount int    `json:"execution_count"`
	EName          string `json:"ename"`
	EValue         string `json:"evalue"`
	Traceback      []string `json:"traceback"`
}

type statusContent struct {
	ExecutionState string `json:"execution_state"`
}

type executeInputContent struct {
	Code           string `json:"code"`
	ExecutionCount int    `json:"execution_count"`
}

type streamContent struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

type displayDataContent struct {
	Data      MIMEBundle     `json:"data"`
	Metadata  map[string]any `json:"metadata"`
	Transient map[string]any `json:"transient"`
}

type executeResultContent struct {
	ExecutionCount int            `json:"execution_count"`
	Data           MIMEBundle     `json:"data"`
	Metadata       map[string]any `json:"metadata"`
}

type errorContent struct {
	EName     string   `json:"ename"`
	EValue    string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

type clearOutputContent struct {
	Wait bool `json:"wait"`
}

// commOpenContent, commMsgContent and commCloseContent are the bodies
// forwarded to the Comm Manager.
type commOpenContent struct {
	CommID     string         `json:"comm_id"`
	TargetName string         `json:"target_name"`
	Data       map[string]any `json:"data"`
}

type commMsgContent struct {
	CommID string         `json:"comm_id"`
	Data   map[string]any `json:"data"`
}

type commCloseContent struct {
	CommID string         `json:"comm_id"`
	Data   map[string]any `json:"data"`
}

type inputRequestContent struct {
	Prompt   string `json:"prompt"`
	Password bool   `json:"password"`
}

type inputReplyContent struct {
	Value string `json:"value"`
}

// completeRequestContent/completeReplyContent implement the complete()
// operation (spec §4.4).
type completeRequestContent struct {
	Code      string `json:"code"`
	CursorPos int    `json:"cursor_pos"`
}

// CompleteReply is the parsed reply to a complete_request. Matches is
// the bare match list; when the kernel supports the experimental
// "metadata._jupyter_types_experimental" field, TypedMatches holds the
// richer (text, type) pairs and is preferred by Complete.
type CompleteReply struct {
	Status      string   `json:"status"`
	Matches     []string `json:"matches"`
	CursorStart int      `json:"cursor_start"`
	CursorEnd   int      `json:"cursor_end"`
	Metadata    struct {
		TypedMatches []struct {
			Text  string `json:"text"`
			Type  string `json:"type"`
			Start int    `json:"start"`
			End   int    `json:"end"`
		} `json:"_jupyter_types_experimental"`
	} `json:"metadata"`
}

// Completion is a single completion candidate as returned by Complete,
// after preferring typed matches over bare ones.
type Completion struct {
	Text  string
	Type  string
	Start int
	End   int
}

type inspectRequestContent struct {
	Code        string `json:"code"`
	CursorPos   int    `json:"cursor_pos"`
	DetailLevel int    `json:"detail_level"`
}

// InspectReply is the parsed reply to an inspect_request.
type InspectReply struct {
	Status string     `json:"status"`
	Found  bool       `json:"found"`
	Data   MIMEBundle `json:"data"`
}

type historyRequestContent struct {
	Output  bool   `json:"output"`
	Raw     bool   `json:"raw"`
	HistAccessType string `json:"hist_access_type"`
	Pattern string `json:"pattern"`
	Unique  bool   `json:"unique"`
	N       int    `json:"n"`
}

// HistoryReply is the parsed reply to a history_request; each entry is
// a (session, line, text) triple (the input_cache mode of history_reply
// omits an "output" field, so Text is always the source code).
type HistoryReply struct {
	Status  string              `json:"status"`
	History [][3]any            `json:"history"`
}

// HistoryEntry is the typed form of one HistoryReply.History row.
type HistoryEntry struct {
	Session int
	Line    int
	Text    string
}

// KernelInfoReply is the parsed reply to a kernel_info_request.
type KernelInfoReply struct {
	Status          string `json:"status"`
	ProtocolVersion string `json:"protocol_version"`
	Implementation  string `json:"implementation"`
	Banner          string `json:"banner"`
	LanguageInfo    struct {
		Name          string `json:"name"`
		Version       string `json:"version"`
		MIMEType      string `json:"mimetype"`
		FileExtension string `json:"file_extension"`
	} `json:"language_info"`
}

type shutdownRequestContent struct {
	Restart bool `json:"restart"`
}

type shutdownReplyContent struct {
	Restart bool `json:"restart"`
}

type interruptRequestContent struct{}
