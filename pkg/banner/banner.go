package banner

import "fmt"

const banner = `
██████╗  ██████╗ ████████╗██████╗ ██╗██████╗ ███████╗
██╔══██╗██╔═══██╗╚══██╔══╝██╔══██╗██║██╔══██╗██╔════╝
██████╔╝██║   ██║   ██║   ██████╔╝██║██████╔╝█████╗
██╔══██╗██║   ██║   ██║   ██╔═══╝ ██║██╔═══╝ ██╔══╝
██████╔╝╚██████╔╝   ██║   ██║     ██║██║     ███████╗
╚═════╝  ╚═════╝    ╚═╝   ╚═╝     ╚═╝╚═╝     ╚══════╝
`

// Print writes the startup banner with the effective runtime settings.
func Print(addr, backend, dbPath, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("Backend:  %s\n", backend)
	if backend != "memory" {
		fmt.Printf("DB Path:  %s\n", dbPath)
	}
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST   /v1/activities - Submit an inbound activity for a turn")
	fmt.Println("GET    /v1/transcripts?channel=<id> - List conversations with transcripts")
	fmt.Println("GET    /v1/transcripts/{channel}/{conversation}/activities - Page a transcript")
	fmt.Println("DELETE /v1/transcripts/{channel}/{conversation} - Remove a transcript")
	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -X POST 'http://localhost%s/v1/activities' -d '{\"type\":\"message\",\"conversation\":{\"id\":\"c1\"},\"text\":\"hello\"}'\n", addr)
	fmt.Printf("curl 'http://localhost%s/v1/transcripts?channel=webchat'\n", addr)
	fmt.Println("\n== Production? =================================================")
	fmt.Println("Set a durable storage path (--db)")
	fmt.Println("Configure API keys before exposing the listener")
}
