package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
)

// Usage: test-validate <token> <forwarded-user> [server-url]
func main() {
	if len(os.Args) < 3 {
		log.Fatalf("Usage: %s <token> <forwarded-user> [server-url]", os.Args[0])
	}

	token := os.Args[1]
	user := os.Args[2]
	serverURL := "http://localhost:8000"
	if len(os.Args) > 3 {
		serverURL = os.Args[3]
	}

	body, err := json.Marshal(map[string]any{
		"api_key": token,
		"request": map[string]any{
			"path":    "/v1/agents",
			"headers": map[string]string{"x-forwarded-user": user},
			"params":  map[string]string{},
		},
	})
	if err != nil {
		log.Fatalf("Failed to encode request: %v", err)
	}

	check("validate", mustDo(http.NewRequest(http.MethodPost, serverURL+"/validate", bytes.NewReader(body))))

	selfTest, err := http.NewRequest(http.MethodPost, serverURL+"/validate/test", nil)
	if err != nil {
		log.Fatalf("Failed to create request: %v", err)
	}
	selfTest.Header.Set("X-Forwarded-User", user)
	check("self test", selfTest)
}

func mustDo(req *http.Request, err error) *http.Request {
	if err != nil {
		log.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

func check(name string, req *http.Request) {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("%s: request failed: %v", name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("%s: failed to read response: %v", name, err)
	}

	if resp.StatusCode == http.StatusOK {
		fmt.Printf("✅ %s ALLOWED\n", name)
	} else {
		fmt.Printf("❌ %s DENIED (status %d)\n", name, resp.StatusCode)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "  ", "  "); err != nil {
		fmt.Printf("  %s\n", body)
		return
	}
	fmt.Printf("  %s\n", pretty.String())
}
