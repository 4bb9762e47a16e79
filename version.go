package folkfriend

// Version is the folkfriend bridge version.
const Version = "3.0.0"
