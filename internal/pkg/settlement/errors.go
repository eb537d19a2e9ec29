package settlement

import "errors"

// ErrSubscriptionNotFound means the organization has no subscription row.
// Every onboarded organization gets one, so this is a data-integrity fault,
// not a user error: the settlement fails atomically and the caller must
// surface it so the provider redelivers the event.
var ErrSubscriptionNotFound = errors.New("organization subscription not found")

// ErrOrganizationNotFound means the organization row itself is missing.
var ErrOrganizationNotFound = errors.New("organization not found")
