package identity

import (
	"strings"
	"testing"
)

// TestClassify_KnownCodes は既知コードの分類を検証する。
func TestClassify_KnownCodes(t *testing.T) {
	tests := []struct {
		code string
		want Category
	}{
		{CodeEmailExists, CategoryDuplicateAccount},
		{CodeInvalidEmail, CategoryInvalidCredentialFormat},
		{CodeOperationNotAllowed, CategoryMethodDisabled},
		{CodeWeakPassword, CategoryWeakCredential},
		{CodeUserDisabled, CategoryAccountDisabled},
		{CodeEmailNotFound, CategoryAccountNotFound},
		{CodeInvalidPassword, CategoryWrongCredential},
		{CodeTooManyAttempts, CategoryRateLimited},
		{CodeNetworkRequestFailed, CategoryNetworkUnavailable},
		{CodePopupClosedByUser, CategoryUserCancelled},
		{CodeAccountExistsWithDiffCred, CategoryConflictingCredentialMethod},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := Classify(tt.code, "")
			if err.Category != tt.want {
				t.Errorf("Category = %q, want %q", err.Category, tt.want)
			}
			// ユーザー向け文面に生コードを含めない
			if strings.Contains(err.Message, tt.code) {
				t.Errorf("Message %q should not contain the raw code", err.Message)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

// TestClassify_UnknownCode は未知コードがUnknownに落ちることを検証する。
func TestClassify_UnknownCode(t *testing.T) {
	err := Classify("SOMETHING_NEW", "raw provider message")
	if err.Category != CategoryUnknown {
		t.Errorf("Category = %q, want %q", err.Category, CategoryUnknown)
	}
	if err.Message != "raw provider message" {
		t.Errorf("Message = %q, want raw message preserved", err.Message)
	}
}

// TestClassify_UnknownCodeWithoutMessage は文面の無い未知コードに
// 汎用メッセージが入ることを検証する。
func TestClassify_UnknownCodeWithoutMessage(t *testing.T) {
	err := Classify("SOMETHING_NEW", "")
	if err.Message == "" {
		t.Error("Message should fall back to a generic message")
	}
}

// TestClassify_WrongPasswordMessage は誤パスワードの固定文面を検証する。
func TestClassify_WrongPasswordMessage(t *testing.T) {
	err := Classify(CodeInvalidPassword, "INVALID_PASSWORD")
	if err.Message != "Incorrect password. Please try again." {
		t.Errorf("Message = %q, want fixed taxonomy message", err.Message)
	}
}
