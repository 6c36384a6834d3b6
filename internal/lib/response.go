package response

// Error codes carried in ErrorBody.Code. Clients match on these instead of
// the human readable message.
const (
	CodeChatNotFound              = "chat_not_found"
	CodeNotAMember                = "not_a_member"
	CodeMessageNotFound           = "message_not_found"
	CodeEmptyParticipants         = "empty_participants"
	CodeInvalidRecipient          = "invalid_recipient"
	CodeGroupNameRequired         = "group_name_required"
	CodeTextOrAttachmentsRequired = "text_or_attachments_required"
	CodeContentTypeRequired       = "content_type_required"
	CodeInvalidContentType        = "invalid_content_type"
	CodeInvalidFileID             = "invalid_file_id"
	CodeUnauthorized              = "unauthorized"
	CodeBadRequest                = "bad_request"
	CodeInternal                  = "internal_error"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
