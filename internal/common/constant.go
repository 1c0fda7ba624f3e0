package common

// AuthorizationHeaderName is the HTTP header carrying the bearer access token.
const AuthorizationHeaderName = "Authorization"

// DateLayout is the calendar date format used in URLs and date buckets.
const DateLayout = "2006-01-02"

// TimestampLayout is the wall-clock format returned to API clients.
const TimestampLayout = "2006-01-02 15:04:05"
