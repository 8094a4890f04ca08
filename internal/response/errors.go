package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrAccountInactive    ErrCode = "ACCOUNT_INACTIVE"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrAccountNotFound ErrCode = "ACCOUNT_NOT_FOUND"
	ErrExamNotFound    ErrCode = "EXAM_NOT_FOUND"
	ErrSessionNotFound ErrCode = "SESSION_NOT_FOUND"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrNoExamAssigned      ErrCode = "NO_EXAM_ASSIGNED"
	ErrExamNotAvailable    ErrCode = "EXAM_NOT_AVAILABLE"
	ErrExamNotYetAvailable ErrCode = "EXAM_NOT_YET_AVAILABLE"
	ErrExamWindowClosed    ErrCode = "EXAM_WINDOW_CLOSED"
	ErrQuestionNotInExam   ErrCode = "QUESTION_NOT_IN_EXAM"

	// ─── Session ───────────────────────────────────────────────────────
	ErrNoActiveSession      ErrCode = "NO_ACTIVE_SESSION"
	ErrSessionNotActive     ErrCode = "SESSION_NOT_ACTIVE"
	ErrAlreadySubmitted     ErrCode = "ALREADY_SUBMITTED"
	ErrSubmissionInProgress ErrCode = "SUBMISSION_IN_PROGRESS"
	ErrSubmitTimeout        ErrCode = "SUBMIT_TIMEOUT"
	ErrInvalidReason        ErrCode = "INVALID_SUBMISSION_REASON"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email atau kata sandi salah."
	case ErrAccountInactive:
		return "Akun Anda tidak aktif."
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrAdminAccessOnly:
		return "Sumber daya ini terbatas untuk administrator."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrAccountNotFound:
		return "Akun tidak ditemukan."
	case ErrExamNotFound:
		return "Ujian tidak ditemukan."
	case ErrSessionNotFound:
		return "Sesi ujian tidak ditemukan."

	// ─── Exam-specific ─────────────────────────────────────────────────
	case ErrNoExamAssigned:
		return "Belum ada ujian yang ditugaskan kepada Anda."
	case ErrExamNotAvailable:
		return "Ujian ini saat ini tidak tersedia."
	case ErrExamNotYetAvailable:
		return "Ujian ini belum dibuka."
	case ErrExamWindowClosed:
		return "Waktu pelaksanaan ujian ini sudah berakhir."
	case ErrQuestionNotInExam:
		return "Soal tidak termasuk dalam ujian ini."

	// ─── Session ───────────────────────────────────────────────────────
	case ErrNoActiveSession:
		return "Tidak ada sesi ujian yang aktif."
	case ErrSessionNotActive:
		return "Sesi ujian sedang diproses dan tidak dapat diubah."
	case ErrAlreadySubmitted:
		return "Anda sudah mengumpulkan ujian ini."
	case ErrSubmissionInProgress:
		return "Pengumpulan ujian sedang diproses. Silakan coba lagi sebentar."
	case ErrSubmitTimeout:
		return "Pengumpulan ujian belum selesai. Silakan coba lagi."
	case ErrInvalidReason:
		return "Alasan pengumpulan tidak valid."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
