package models

import "errors"

// ErrKind — классификация ошибок ядра. От класса зависит политика:
// валидация и отказ биржи не ретраятся, transient — ретраится с бэкоффом,
// consistency — только алерт, без автопочинки.
type ErrKind uint8

const (
	ErrKindUnknown ErrKind = iota
	ErrKindValidation
	ErrKindEntitlementDenied
	ErrKindBrokerTransient
	ErrKindBrokerRejected
	ErrKindConsistencyAlert
	ErrKindWorkerCrash
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindValidation:
		return "validation"
	case ErrKindEntitlementDenied:
		return "entitlement_denied"
	case ErrKindBrokerTransient:
		return "broker_transient"
	case ErrKindBrokerRejected:
		return "broker_rejected"
	case ErrKindConsistencyAlert:
		return "consistency_alert"
	case ErrKindWorkerCrash:
		return "worker_crash"
	default:
		return "unknown"
	}
}

type CoreError struct {
	Kind ErrKind
	msg  string
	err  error
}

const sep = ", err: "

func (e *CoreError) Error() string {
	if e.err == nil {
		return e.msg
	}
	if e.msg == "" {
		return e.err.Error()
	}
	return e.msg + sep + e.err.Error()
}

func (e *CoreError) Unwrap() error {
	return e.err
}

func NewError(kind ErrKind, msg string) error {
	return &CoreError{Kind: kind, msg: msg}
}

func WrapError(kind ErrKind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &CoreError{Kind: kind, msg: msg, err: err}
}

// KindOf возвращает класс ошибки, проходя по цепочке Unwrap.
func KindOf(err error) ErrKind {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ErrKindUnknown
}

func IsTransient(err error) bool {
	return KindOf(err) == ErrKindBrokerTransient
}
