package session

import (
	"errors"
	"fmt"

	"github.com/MrWong99/voxauth/pkg/pipeline"
)

// Code is a stable machine-readable error code carried on the wire.
// Client-visible errors always pair a Code with a localized message; raw
// error text from lower layers never leaves the server.
type Code string

const (
	CodeDecodeError          Code = "DECODE_ERROR"
	CodeInvalidAudio         Code = "INVALID_AUDIO"
	CodeASRFailed            Code = "ASR_FAILED"
	CodeSegmentationFailed   Code = "SEGMENTATION_FAILED"
	CodeSpeakerNotFound      Code = "SPEAKER_NOT_FOUND"
	CodeSpeakerAlreadyExists Code = "SPEAKER_ALREADY_EXISTS"
	CodeInvalidPIN           Code = "INVALID_PIN"
	CodePINNotSet            Code = "PIN_NOT_SET"
	CodeMaxRetriesExceeded   Code = "MAX_RETRIES_EXCEEDED"
	CodeTimeout              Code = "TIMEOUT"
	CodeInvalidMessage       Code = "INVALID_MESSAGE"
	CodeInternalError        Code = "INTERNAL_ERROR"
)

// Client-facing messages (reference locale: Japanese).
const (
	msgTimeout            = "タイムアウトしました"
	msgInternalError      = "内部エラーが発生しました"
	msgExpectStartEnroll  = "最初のメッセージはstart_enrollmentである必要があります"
	msgExpectStartVerify  = "最初のメッセージはstart_verifyである必要があります"
	msgExpectBinaryAudio  = "音声データ（バイナリ）が期待されています"
	msgExpectRegisterPIN  = "register_pinメッセージが期待されています"
	msgExpectVerifyPIN    = "verify_pinメッセージが期待されています"
	msgInvalidMessage     = "無効なメッセージです"
	msgInvalidPIN         = "PINは4桁の数字で入力してください"
	msgRetryPrompt        = "聞き取れませんでした。もう一度、はっきりとお願いします"
	msgSetAccepted        = "OK! 次へ進みます"
	msgVoiceEnrollDone    = "音声登録完了! PINを設定してください"
	msgAuthSuccess        = "認証成功"
	msgPINAuthSuccess     = "PIN認証成功"
	msgVoiceMismatch      = "声紋が一致しません"
	msgPromptMismatch     = "発話内容がプロンプトと一致しません"
	msgPINMismatch        = "PINが一致しません"
	msgPINNotSet          = "PINが登録されていません"
	msgVerifyError        = "認証処理中にエラーが発生しました"
)

func msgSpeakerExists(speakerID string) string {
	return fmt.Sprintf("Speaker '%s' は既に登録されています", speakerID)
}

func msgSpeakerNotFound(speakerID string) string {
	return fmt.Sprintf("Speaker '%s' は登録されていません", speakerID)
}

func msgMaxRetries(max int) string {
	return fmt.Sprintf("リトライ上限(%d回)に達しました", max)
}

// codeFor maps a pipeline error to its wire code. Used for logging and
// metrics labels; in enrollment these errors surface as failed asr_result
// frames rather than error frames.
func codeFor(err error) Code {
	switch {
	case errors.Is(err, pipeline.ErrDecode):
		return CodeDecodeError
	case errors.Is(err, pipeline.ErrInvalidAudio), errors.Is(err, pipeline.ErrNoSpeech):
		return CodeInvalidAudio
	case errors.Is(err, pipeline.ErrASRFailed):
		return CodeASRFailed
	case errors.Is(err, pipeline.ErrSegmentation):
		return CodeSegmentationFailed
	default:
		return CodeInternalError
	}
}

// recoverable reports whether a pipeline error counts as a failed attempt
// the client may retry, rather than a terminal session failure.
func recoverable(err error) bool {
	return errors.Is(err, pipeline.ErrDecode) ||
		errors.Is(err, pipeline.ErrInvalidAudio) ||
		errors.Is(err, pipeline.ErrNoSpeech) ||
		errors.Is(err, pipeline.ErrASRFailed) ||
		errors.Is(err, pipeline.ErrSegmentation)
}
