package auth

import (
	"fmt"
	"strings"
)

// ShowCookieExtractionGuide displays step-by-step instructions for extracting cookies
func ShowCookieExtractionGuide() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("X SESSION COOKIE EXTRACTION GUIDE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()

	fmt.Println("This tool needs your X session cookies to call the in-session API.")
	fmt.Println("Follow these steps to extract them from your browser:")
	fmt.Println()

	fmt.Println("STEP 1: Open X in your browser")
	fmt.Println("   - Go to https://x.com")
	fmt.Println("   - Log in with your account")
	fmt.Println("   - Make sure you can see your home timeline")
	fmt.Println()

	fmt.Println("STEP 2: Open Developer Tools")
	fmt.Println("   - Chrome/Edge/Brave: Press F12 or Ctrl+Shift+I (Cmd+Option+I on Mac)")
	fmt.Println("   - Firefox: Press F12 or Ctrl+Shift+I (Cmd+Option+I on Mac)")
	fmt.Println("   - Safari: Enable Developer menu in Preferences, then Cmd+Option+I")
	fmt.Println()

	fmt.Println("STEP 3: Find your cookies")
	fmt.Println("   METHOD A - From the Network tab:")
	fmt.Println("   1. Click on the 'Network' tab and refresh the page (F5)")
	fmt.Println("   2. Look for any request to 'x.com'")
	fmt.Println("   3. Click on it, then go to 'Headers' -> 'Request Headers'")
	fmt.Println("   4. Copy the whole 'Cookie:' line")
	fmt.Println()
	fmt.Println("   METHOD B - From the Application/Storage tab:")
	fmt.Println("   1. Go to 'Application' tab (Chrome) or 'Storage' tab (Firefox)")
	fmt.Println("   2. In the left sidebar, expand 'Cookies'")
	fmt.Println("   3. Click on 'https://x.com'")
	fmt.Println("   4. Copy the values of these two cookies:")
	fmt.Println()

	fmt.Println("STEP 4: The cookies that matter:")
	fmt.Println("   auth_token  - hex string identifying your login")
	fmt.Println("   ct0         - long hex string, doubles as the CSRF token")
	fmt.Println()

	fmt.Println("TIPS:")
	fmt.Println("   - Pasting the entire Cookie header also works; the tool picks")
	fmt.Println("     out auth_token and ct0 itself")
	fmt.Println("   - These cookies expire when you log out, so re-extract after that")
	fmt.Println()

	fmt.Println("SECURITY WARNING:")
	fmt.Println("   - These cookies give FULL access to your X account")
	fmt.Println("   - NEVER share them with anyone")
	fmt.Println("   - Store them securely (this tool encrypts them)")
	fmt.Println()
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()
}

// ShowQuickExtractGuide shows a condensed version for experienced users
func ShowQuickExtractGuide() {
	fmt.Println("\nQuick guide: F12 -> Network tab -> Refresh -> Click any x.com request -> Headers -> Cookie")
	fmt.Println("   Need: auth_token=... and ct0=...")
	fmt.Println("   Run 'xfc auth help' for detailed instructions")
}
