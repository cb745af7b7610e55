package config

import (
	"log"
	"os"
)

// RequiredEnv lists the process configuration every deployment should carry.
// Missing values are warned about rather than fatal so local setups can run a
// subset of features.
var RequiredEnv = []string{
	"DATABASE_URL",
	"IDENTITY_PUBLISHABLE_KEY",
	"IDENTITY_SECRET_KEY",
	"GEMINI_API_KEY",
	"CLIPDROP_API_KEY",
	"CLOUDINARY_CLOUD_NAME",
	"CLOUDINARY_API_KEY",
	"CLOUDINARY_API_SECRET",
}

// WarnMissing logs a warning for every required variable that is unset and
// returns the missing names.
func WarnMissing() []string {
	return warnMissing(os.Getenv)
}

func warnMissing(getenv func(string) string) []string {
	var missing []string
	for _, key := range RequiredEnv {
		if getenv(key) == "" {
			log.Printf("[Config] environment variable %s is not set", key)
			missing = append(missing, key)
		}
	}
	return missing
}
