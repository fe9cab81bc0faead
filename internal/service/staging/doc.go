// Package staging implements review-time access to extracted catalog data.
//
// Listing supports both explicit-session queries and ambient discovery of
// the most recent active session, so a reviewer who reloads the page can
// resume without a session handle. Mutations are only permitted while the
// owning session is in completed status; anything frozen by import or expiry
// is rejected.
package staging
