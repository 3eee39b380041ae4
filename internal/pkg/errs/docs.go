// Package errs holds the error types shared by the domain, the use cases and the adapters.
//
// Every type pairs with a sentinel that its Unwrap returns:
//
//	ValueIsRequiredError    -> ErrValueIsRequired
//	ValueIsInvalidError     -> ErrValueIsInvalid
//	ValueIsOutOfRangeError  -> ErrValueIsOutOfRange
//	ObjectNotFoundError     -> ErrObjectNotFound
//	PersistenceError        -> ErrPersistence (the store failed)
//	PublishError            -> ErrPublish (the broker failed after the data was stored)
//
// Callers classify failures with errors.Is against the sentinels and never
// by matching message text. The HTTP adapter maps the first three to 400 and
// ObjectNotFound to 404.
package errs
