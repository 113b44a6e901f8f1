package libauth

import "strings"

// Message keys carried by Error.Key.
const (
	KeyRegistrationRateLimit       = "registration.rateLimit"
	KeyRegistrationInvalidEmail    = "registration.invalidEmail"
	KeyRegistrationInvalidDomain   = "registration.invalidDomain"
	KeyRegistrationInvalidPassword = "registration.invalidPassword"
	KeyRegistrationDuplicateEmail  = "registration.duplicateEmail"
	KeyRegistrationSuccess         = "registration.success"

	KeyVerifyEmailSuccess = "verifyEmail.success"
	KeyVerifyEmailInvalid = "verifyEmail.invalid"

	KeyLoginRateLimit          = "login.rateLimit"
	KeyLoginInvalidCredentials = "login.invalidCredentials"
	KeyLoginUnverifiedEmail    = "login.unverifiedEmail"
	KeyLoginSuccess            = "login.success"

	KeyRefreshInvalid = "refresh.invalid"
	KeyRefreshExpired = "refresh.expired"
	KeyRefreshSuccess = "refresh.success"

	KeyLogoutSuccess = "logout.success"

	KeyForgotPasswordSent = "forgotPassword.sent"

	KeyResetPasswordNotFound        = "resetPassword.token.notFound"
	KeyResetPasswordInvalid         = "resetPassword.token.invalid"
	KeyResetPasswordInvalidPassword = "resetPassword.invalidPassword"
	KeyResetPasswordSuccess         = "resetPassword.success"

	KeyInvalidToken   = "general.invalidToken"
	KeyInvalidSession = "general.invalidSession"
	KeyInvalidRequest = "general.invalidRequest"
	KeyForbidden      = "general.forbidden"
	KeyUnavailable    = "general.unavailable"
	KeyInternal       = "general.internal"
)

// DefaultLanguage is used when a requested language has no catalog.
const DefaultLanguage = "en"

var catalog = map[string]map[string]string{
	"en": {
		KeyRegistrationRateLimit:        "Too many registrations from this address. Please try again later.",
		KeyRegistrationInvalidEmail:     "The email address is not valid.",
		KeyRegistrationInvalidDomain:    "The email domain cannot receive mail.",
		KeyRegistrationInvalidPassword:  "Password must be at least 8 characters and contain upper-case, lower-case letters and digits only.",
		KeyRegistrationDuplicateEmail:   "The email address is already registered.",
		KeyRegistrationSuccess:          "Registration successful. Please check your email to verify your account.",
		KeyVerifyEmailSuccess:           "Your email has been verified.",
		KeyVerifyEmailInvalid:           "The verification link is invalid or has expired.",
		KeyLoginRateLimit:               "Too many failed login attempts. Please try again later.",
		KeyLoginInvalidCredentials:      "Invalid email or password.",
		KeyLoginUnverifiedEmail:         "Please verify your email before logging in.",
		KeyLoginSuccess:                 "Login successful.",
		KeyRefreshInvalid:               "The refresh token is invalid.",
		KeyRefreshExpired:               "The refresh token has expired.",
		KeyRefreshSuccess:               "Token refreshed.",
		KeyLogoutSuccess:                "Logged out.",
		KeyForgotPasswordSent:           "If the email is registered, a reset link has been sent.",
		KeyResetPasswordNotFound:        "The reset link was not found.",
		KeyResetPasswordInvalid:         "The reset link is invalid or has expired.",
		KeyResetPasswordInvalidPassword: "Password must be at least 8 characters and contain upper-case, lower-case letters and digits only.",
		KeyResetPasswordSuccess:         "Your password has been reset.",
		KeyInvalidToken:                 "The access token is invalid.",
		KeyInvalidSession:               "The session has ended. Please log in again.",
		KeyInvalidRequest:               "The request is malformed.",
		KeyForbidden:                    "You do not have access to this resource.",
		KeyUnavailable:                  "The service is temporarily unavailable.",
		KeyInternal:                     "An unexpected error occurred.",
	},
	"id": {
		KeyRegistrationRateLimit:        "Terlalu banyak pendaftaran dari alamat ini. Silakan coba lagi nanti.",
		KeyRegistrationInvalidEmail:     "Alamat email tidak valid.",
		KeyRegistrationInvalidDomain:    "Domain email tidak dapat menerima email.",
		KeyRegistrationInvalidPassword:  "Password minimal 8 karakter dan hanya berisi huruf besar, huruf kecil, dan angka.",
		KeyRegistrationDuplicateEmail:   "Email sudah terdaftar.",
		KeyRegistrationSuccess:          "Pendaftaran berhasil. Silakan cek email Anda untuk verifikasi akun.",
		KeyVerifyEmailSuccess:           "Email Anda berhasil diverifikasi.",
		KeyVerifyEmailInvalid:           "Link verifikasi tidak valid atau sudah kedaluwarsa.",
		KeyLoginRateLimit:               "Terlalu banyak percobaan login gagal. Silakan coba lagi nanti.",
		KeyLoginInvalidCredentials:      "Email atau password salah.",
		KeyLoginUnverifiedEmail:         "Silakan verifikasi email Anda sebelum login.",
		KeyLoginSuccess:                 "Login berhasil.",
		KeyRefreshInvalid:               "Refresh token tidak valid.",
		KeyRefreshExpired:               "Refresh token sudah kedaluwarsa.",
		KeyRefreshSuccess:               "Token berhasil diperbarui.",
		KeyLogoutSuccess:                "Berhasil logout.",
		KeyForgotPasswordSent:           "Jika email terdaftar, link reset password telah dikirim.",
		KeyResetPasswordNotFound:        "Link reset password tidak ditemukan.",
		KeyResetPasswordInvalid:         "Link reset password tidak valid atau sudah kedaluwarsa.",
		KeyResetPasswordInvalidPassword: "Password minimal 8 karakter dan hanya berisi huruf besar, huruf kecil, dan angka.",
		KeyResetPasswordSuccess:         "Password Anda berhasil direset.",
		KeyInvalidToken:                 "Token akses tidak valid.",
		KeyInvalidSession:               "Sesi telah berakhir. Silakan login kembali.",
		KeyInvalidRequest:               "Permintaan tidak valid.",
		KeyForbidden:                    "Anda tidak memiliki akses ke sumber daya ini.",
		KeyUnavailable:                  "Layanan sedang tidak tersedia.",
		KeyInternal:                     "Terjadi kesalahan yang tidak terduga.",
	},
}

// Message resolves key in lang ("en", "id", or an Accept-Language style tag
// such as "id-ID"). Unknown languages fall back to English and unknown keys
// return the key itself.
func Message(key, lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_,;"); i >= 0 {
		lang = lang[:i]
	}
	if msgs, ok := catalog[lang]; ok {
		if m, ok := msgs[key]; ok {
			return m
		}
	}
	if m, ok := catalog[DefaultLanguage][key]; ok {
		return m
	}
	return key
}
