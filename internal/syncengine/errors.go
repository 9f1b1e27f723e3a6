package syncengine

import "errors"

// ErrInvalidTimestamp marks an envelope whose timestamp string failed to
// parse. Per spec §7 the recovery is to drop the envelope and continue,
// not to fail the whole batch.
var ErrInvalidTimestamp = errors.New("syncengine: invalid timestamp")

// ErrDbTransaction wraps a Repository.Transaction failure (spec §7
// DbTransactionError): the batch rolls back and none of its envelopes
// advance the clock.
var ErrDbTransaction = errors.New("syncengine: repository transaction failed")
