package bot

import _ "embed"

// DefaultTranslations is used when no i18n file is configured.
//
//go:embed i18n.json
var DefaultTranslations []byte

// error messages
const (
	panicMsgId                = "panic"
	errorInternalMsgId        = "error_internal"
	errorUnknownCommandMsgId  = "error_unknown_command"
	errorBookNotSelectedMsgId = "error_book_not_selected"
	errorBookNotFoundMsgId    = "error_book_not_found"
	errorBookFinishedMsgId    = "error_book_finished"
	errorAlreadyReadingMsgId  = "error_already_reading"
	errorNothingToStopMsgId   = "error_nothing_to_stop"
	errorInvalidRateMsgId     = "error_invalid_rate"
	errorInvalidIntervalMsgId = "error_invalid_interval"
	errorInvalidUserIDMsgId   = "error_invalid_user_id"
	errorInvalidBookMsgId     = "error_invalid_book"
	errorBookTooBigMsgId      = "error_book_too_big"
	errorNotAdminMsgId        = "error_not_admin"
	warningNoBooksMsgId       = "warning_no_books"
)

const (
	startMsgId        = "start"
	helpMsgId         = "help"
	onListMsgId       = "on_list"
	onBookSelectMsgId = "on_book_select"
	rateSetMsgId      = "rate_set"
	intervalSetMsgId  = "interval_set"
	onReadStartMsgId  = "on_read_start"
	onStopMsgId       = "on_stop"
	onRereadMsgId     = "on_reread"
	statusMsgId       = "status"
	bookFinishedMsgId = "book_finished"
	adminStatusMsgId  = "admin_status"
	onBookAddedMsgId  = "on_book_added"
)

const (
	readButtonMsgId   = "read_button"
	stopButtonMsgId   = "stop_button"
	rereadButtonMsgId = "reread_button"
)

const deliveryMsgIdPrefix = "delivery_"
