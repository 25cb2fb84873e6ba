package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowCredentialGuide writes step-by-step instructions for obtaining the
// credentials of backend
func ShowCredentialGuide(w io.Writer, backend string) {
	line := strings.Repeat("=", 80)
	fmt.Fprintln(w, line)

	switch backend {
	case BackendBluesky:
		fmt.Fprintln(w, "BLUESKY APP PASSWORD GUIDE")
		fmt.Fprintln(w, line)
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Bluesky reposts and profiles are public; a login only raises rate limits.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "STEP 1: Open https://bsky.app and sign in")
		fmt.Fprintln(w, "STEP 2: Settings -> Privacy and security -> App passwords")
		fmt.Fprintln(w, "STEP 3: Add an app password named 'repostreach' and copy it")
		fmt.Fprintln(w, "STEP 4: Run 'repostreach auth login --backend bluesky' and enter")
		fmt.Fprintln(w, "        your handle (alice.bsky.social) and the app password")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Never use your main account password here.")
	default:
		fmt.Fprintln(w, "TWITTER API CREDENTIAL GUIDE")
		fmt.Fprintln(w, line)
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Retweeter lookups need OAuth 1.0a user context: four tokens in total.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "STEP 1: Open https://developer.twitter.com and sign in")
		fmt.Fprintln(w, "STEP 2: Create a project and an app inside it")
		fmt.Fprintln(w, "STEP 3: Under 'Keys and tokens' copy:")
		fmt.Fprintln(w, "   +-----------------------+----------------------------------+")
		fmt.Fprintln(w, "   | Value                 | Where it lives                   |")
		fmt.Fprintln(w, "   +-----------------------+----------------------------------+")
		fmt.Fprintln(w, "   | Consumer key          | Consumer Keys -> API Key         |")
		fmt.Fprintln(w, "   | Consumer secret       | Consumer Keys -> API Key Secret  |")
		fmt.Fprintln(w, "   | Access token          | Authentication Tokens -> Token   |")
		fmt.Fprintln(w, "   | Access token secret   | Authentication Tokens -> Secret  |")
		fmt.Fprintln(w, "   +-----------------------+----------------------------------+")
		fmt.Fprintln(w, "STEP 4: Run 'repostreach auth login' and paste them when asked")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "The free tier allows 75 retweeter lookups per 15 minutes, so large")
		fmt.Fprintln(w, "inputs take days. Keep the process running or resume it with --resume.")
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "These tokens grant access to your account. They are stored in the system")
	fmt.Fprintln(w, "keychain or an encrypted file, never in plain text.")
	fmt.Fprintln(w, line)
}

// ShowQuickGuide prints a one-line reminder for experienced users
func ShowQuickGuide(w io.Writer, backend string) {
	if backend == BackendBluesky {
		fmt.Fprintln(w, "Need: handle and app password (Settings -> App passwords). Type 'help' for details.")
		return
	}
	fmt.Fprintln(w, "Need: consumer key/secret and access token/secret from the developer portal. Type 'help' for details.")
}
