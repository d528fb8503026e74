package identity

// Category は認証エラーの固定分類を表す。
// プロバイダー固有の失敗はすべて、ユーザーに表示される前に
// このいずれか1つへ全域的にマッピングされる。
type Category string

const (
	CategoryDuplicateAccount            Category = "duplicate_account"
	CategoryInvalidCredentialFormat     Category = "invalid_credential_format"
	CategoryMethodDisabled              Category = "method_disabled"
	CategoryWeakCredential              Category = "weak_credential"
	CategoryAccountDisabled             Category = "account_disabled"
	CategoryAccountNotFound             Category = "account_not_found"
	CategoryWrongCredential             Category = "wrong_credential"
	CategoryRateLimited                 Category = "rate_limited"
	CategoryNetworkUnavailable          Category = "network_unavailable"
	CategoryUserCancelled               Category = "user_cancelled"
	CategoryConflictingCredentialMethod Category = "conflicting_credential_method"
	CategoryUnknown                     Category = "unknown"
)

// プロバイダーが返すエラーコード。
const (
	CodeEmailExists               = "EMAIL_EXISTS"
	CodeInvalidEmail              = "INVALID_EMAIL"
	CodeOperationNotAllowed       = "OPERATION_NOT_ALLOWED"
	CodeWeakPassword              = "WEAK_PASSWORD"
	CodeUserDisabled              = "USER_DISABLED"
	CodeEmailNotFound             = "EMAIL_NOT_FOUND"
	CodeInvalidPassword           = "INVALID_PASSWORD"
	CodeTooManyAttempts           = "TOO_MANY_ATTEMPTS_TRY_LATER"
	CodeNetworkRequestFailed      = "NETWORK_REQUEST_FAILED"
	CodePopupClosedByUser         = "POPUP_CLOSED_BY_USER"
	CodeAccountExistsWithDiffCred = "ACCOUNT_EXISTS_WITH_DIFFERENT_CREDENTIAL"
)

// Error は分類済みの認証エラー。
// Messageはそのままユーザーに表示できる文面で、生のプロバイダーコードは含まない。
type Error struct {
	Category Category
	Message  string
	Code     string // プロバイダーの生コード（ログ用）
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	return e.Message
}

// classification はコードごとの分類とユーザー向け文面。
type classification struct {
	category Category
	message  string
}

// classifications はプロバイダーコードから分類への全域マッピング。
var classifications = map[string]classification{
	CodeEmailExists:               {CategoryDuplicateAccount, "This email is already registered. Try signing in instead."},
	CodeInvalidEmail:              {CategoryInvalidCredentialFormat, "Invalid email address format."},
	CodeOperationNotAllowed:       {CategoryMethodDisabled, "This sign-in method is not enabled."},
	CodeWeakPassword:              {CategoryWeakCredential, "Password should be at least 8 characters long."},
	CodeUserDisabled:              {CategoryAccountDisabled, "This account has been disabled."},
	CodeEmailNotFound:             {CategoryAccountNotFound, "No account found with this email."},
	CodeInvalidPassword:           {CategoryWrongCredential, "Incorrect password. Please try again."},
	CodeTooManyAttempts:           {CategoryRateLimited, "Too many failed attempts. Please wait a few minutes and try again."},
	CodeNetworkRequestFailed:      {CategoryNetworkUnavailable, "Network error. Please check your internet connection."},
	CodePopupClosedByUser:         {CategoryUserCancelled, "Sign-in popup was closed. Please try again."},
	CodeAccountExistsWithDiffCred: {CategoryConflictingCredentialMethod, "An account already exists with the same email but different sign-in method."},
}

// Classify はプロバイダーの生コードを分類済みエラーに変換する。
// 未知のコードはCategoryUnknownとし、rawMessageをそのまま文面に使用する。
func Classify(code, rawMessage string) *Error {
	if c, ok := classifications[code]; ok {
		return &Error{
			Category: c.category,
			Message:  c.message,
			Code:     code,
		}
	}
	message := rawMessage
	if message == "" {
		message = "An error occurred during authentication."
	}
	return &Error{
		Category: CategoryUnknown,
		Message:  message,
		Code:     code,
	}
}
