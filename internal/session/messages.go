package session

// clientMessage is the union of all JSON control frames a client may
// send. Type discriminates; unused fields stay empty.
type clientMessage struct {
	Type        string `json:"type"`
	SpeakerID   string `json:"speaker_id,omitempty"`
	SpeakerName string `json:"speaker_name,omitempty"`
	PIN         string `json:"pin,omitempty"`
}

type promptsMessage struct {
	Type       string   `json:"type"` // "prompts"
	SpeakerID  string   `json:"speaker_id"`
	Prompts    []string `json:"prompts"`
	TotalSets  int      `json:"total_sets"`
	CurrentSet int      `json:"current_set"`
}

type asrResultMessage struct {
	Type          string `json:"type"` // "asr_result"
	Success       bool   `json:"success"`
	ASRResult     string `json:"asr_result"`
	SetIndex      int    `json:"set_index"`
	RemainingSets int    `json:"remaining_sets"`
	RetryCount    int    `json:"retry_count,omitempty"`
	MaxRetries    int    `json:"max_retries,omitempty"`
	Message       string `json:"message"`
}

type enrollmentCompleteMessage struct {
	Type             string   `json:"type"` // "enrollment_complete"
	SpeakerID        string   `json:"speaker_id"`
	RegisteredDigits []string `json:"registered_digits"`
	HasPIN           bool     `json:"has_pin"`
	Status           string   `json:"status"` // "registered"
}

type promptMessage struct {
	Type   string `json:"type"` // "prompt"
	Prompt string `json:"prompt"`
	Length int    `json:"length"`
}

type verifyResultMessage struct {
	Type             string             `json:"type"` // "verify_result"
	Authenticated    bool               `json:"authenticated"`
	SpeakerID        string             `json:"speaker_id"`
	ASRResult        string             `json:"asr_result"`
	ASRMatched       bool               `json:"asr_matched"`
	VoiceSimilarity  *float32           `json:"voice_similarity"`
	DigitScores      map[string]float32 `json:"digit_scores"`
	CanFallbackToPIN bool               `json:"can_fallback_to_pin,omitempty"`
	AuthMethod       string             `json:"auth_method,omitempty"`
	Message          string             `json:"message"`
}

type errorMessage struct {
	Type    string `json:"type"` // "error"
	Code    Code   `json:"code"`
	Message string `json:"message"`
}
