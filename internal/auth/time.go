package auth

import "time"

// timeNow is swapped in tests to pin token expiry and SRP timestamps.
var timeNow = time.Now
