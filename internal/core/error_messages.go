package core

// # Error Codes Reference
//
// User-facing messages carry a code that users can quote to support.
// Typed errors are matched first with errors.As / errors.Is; technical
// errors without a type (driver and network failures) fall back to
// case-insensitive substring patterns.
//
// # Ingestion Errors (ING001-ING099)
//
//	ING001 - Unsupported file: not an .xml name, PDF content or empty file
//	ING002 - Decode error: bytes are not valid in the detected encoding
//	ING003 - Malformed XML: the parser rejected the document
//	ING004 - Missing field: supplier tax id and/or name not found
//	ING005 - Invalid field: a value is not a number or a calendar date
//	ING006 - ID resolution: the upsert returned no document id
//	ING007 - File too large: upload exceeds UPLOAD_MAX_FILE_SIZE
//
// # Workflow Errors (WF001-WF099)
//
//	WF001 - Validation: comment is blank
//	WF002 - Invalid transition: action not allowed from the current status
//	WF003 - Not found: unknown document id
//
// # Request Validation (VAL001)
//
//	VAL001 - Invalid parameter: a path, query or form value is malformed
//
// # Authentication (AUTH001)
//
//	AUTH001 - Invalid credentials: unknown email, inactive user or wrong password
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Conflict: a unique constraint escaped internal recovery
//	DB003 - Foreign key: referenced record does not exist
//	DB004 - Connection refused
//	DB005 - Connection reset
//	DB006 - Timeout
//	DB007 - Deadlock
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: too many requests from this address
//	RATE002 - Busy: every ingestion slot is occupied
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Support staff should check application
// logs (by request id) for the original technical error.

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/fiscal/internal/fiscal"
	"github.com/JonMunkholm/fiscal/internal/store"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorRule matches an error by type and builds its message.
type errorRule struct {
	match func(err error) (UserMessage, bool)
}

func asRule[T error](build func(T) UserMessage) errorRule {
	return errorRule{match: func(err error) (UserMessage, bool) {
		var target T
		if errors.As(err, &target) {
			return build(target), true
		}
		return UserMessage{}, false
	}}
}

func isRule(sentinel error, msg UserMessage) errorRule {
	return errorRule{match: func(err error) (UserMessage, bool) {
		if errors.Is(err, sentinel) {
			return msg, true
		}
		return UserMessage{}, false
	}}
}

// errorRules are tried in order; the first match wins.
var errorRules = []errorRule{
	asRule(func(e *fiscal.UnsupportedFileError) UserMessage {
		return UserMessage{
			Message: "Apenas arquivos XML de nota fiscal são aceitos",
			Action:  "Envie o arquivo XML da nota fiscal (não o PDF)",
			Code:    "ING001",
		}
	}),
	asRule(func(e *FileTooLargeError) UserMessage {
		return UserMessage{
			Message: fmt.Sprintf("Arquivo excede o limite de %d bytes", e.Limit),
			Action:  "Verifique se o arquivo enviado é o XML da nota",
			Code:    "ING007",
		}
	}),
	asRule(func(e *fiscal.DecodeError) UserMessage {
		return UserMessage{
			Message: fmt.Sprintf("Arquivo contém caracteres inválidos para %s", e.Encoding),
			Action:  "Salve o XML em UTF-8 ou ISO-8859-1 e envie novamente",
			Code:    "ING002",
		}
	}),
	asRule(func(e *fiscal.MalformedXMLError) UserMessage {
		return UserMessage{
			Message: "XML inválido: " + e.Err.Error(),
			Action:  "Confira se o arquivo não foi truncado ou editado",
			Code:    "ING003",
		}
	}),
	asRule(func(e *fiscal.MissingRequiredFieldError) UserMessage {
		return UserMessage{
			Message: "Campos obrigatórios ausentes: " + strings.Join(e.Fields, ", "),
			Action:  "Confira se o XML identifica o emitente (CNPJ/CPF e razão social)",
			Code:    "ING004",
		}
	}),
	asRule(func(e *fiscal.InvalidFieldFormatError) UserMessage {
		return UserMessage{
			Message: fmt.Sprintf("Valor inválido no campo %s: %q", e.Field, e.Value),
			Action:  "Valores devem ser números não negativos e datas no formato AAAA-MM-DD",
			Code:    "ING005",
		}
	}),
	asRule(func(e *fiscal.DocumentIDResolutionError) UserMessage {
		return UserMessage{
			Message: "Não foi possível obter o ID do documento salvo",
			Action:  "Tente novamente ou contate o suporte",
			Code:    "ING006",
		}
	}),
	asRule(func(e *fiscal.ValidationError) UserMessage {
		if e.Field != "comentarios" {
			return UserMessage{
				Message: "Parâmetro inválido: " + e.Field,
				Action:  "Confira os dados enviados",
				Code:    "VAL001",
			}
		}
		return UserMessage{
			Message: "Comentário é obrigatório",
			Action:  "Informe o motivo da ação no campo comentarios",
			Code:    "WF001",
		}
	}),
	asRule(func(e *fiscal.InvalidTransitionError) UserMessage {
		return UserMessage{
			Message: fmt.Sprintf("Documento não pode ser alterado a partir do status %s", e.Current),
			Action:  "Atualize a página para ver o status atual do documento",
			Code:    "WF002",
		}
	}),
	isRule(store.ErrNotFound, UserMessage{
		Message: "Documento não encontrado",
		Action:  "Verifique o identificador do documento",
		Code:    "WF003",
	}),
	isRule(ErrInvalidCredentials, UserMessage{
		Message: "Email ou senha inválidos",
		Action:  "Confira suas credenciais e tente novamente",
		Code:    "AUTH001",
	}),
	isRule(ErrTooManyUploads, UserMessage{
		Message: "Sistema ocupado processando outras importações",
		Action:  "Aguarde alguns instantes e tente novamente",
		Code:    "RATE002",
	}),
	isRule(store.ErrUniqueViolation, UserMessage{
		Message: "Registro duplicado",
		Action:  "Tente novamente",
		Code:    "DB001",
	}),
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns cover untyped technical errors. Patterns are matched using
// strings.Contains on the lowercased message, first match wins.
var errorPatterns = []errorPattern{
	{
		pattern: "foreign key",
		msg: UserMessage{
			Message: "Registro relacionado não existe",
			Action:  "Verifique a empresa e o fornecedor informados",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Não foi possível conectar ao banco de dados",
			Action:  "Tente novamente em alguns instantes",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "A conexão com o banco de dados foi interrompida",
			Action:  "Tente novamente",
			Code:    "DB005",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "A operação excedeu o tempo limite",
			Action:  "Tente novamente mais tarde",
			Code:    "DB006",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "A operação excedeu o tempo limite",
			Action:  "Tente novamente mais tarde",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "O banco de dados estava ocupado com operações conflitantes",
			Action:  "Tente novamente",
			Code:    "DB007",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Muitas requisições",
			Action:  "Aguarde um momento antes de tentar novamente",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "Ocorreu um erro inesperado",
	Action:  "Tente novamente ou contate o suporte",
	Code:    "ERR000",
}

// MapError converts an error to a user-friendly message. Typed rules are
// tried first, then substring patterns; anything else maps to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, r := range errorRules {
		if msg, ok := r.match(err); ok {
			return msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
