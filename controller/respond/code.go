package respond

const (
	HttpsCodeSuccess      = 0
	HttpsCodeError        = 1
	HttpsCodeBadRequest   = 400
	HttpsCodeUnauthorized = 401
	HttpsCodeForbidden    = 403
	HttpsCodeNotFound     = 404

	RespMessageSuccess = "success"
)
