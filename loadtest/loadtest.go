package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const script = `import json, time
time.sleep(0.5)
print("working")
with open("{{output_file}}", "w") as f:
    json.dump({"answer": 42}, f)
`

type status struct {
	TimeStarted   *time.Time `json:"time_started"`
	TimeCompleted *time.Time `json:"time_completed"`
	Error         bool       `json:"error"`
}

func main() {
	base := flag.String("url", "http://localhost:8080", "scriptd base url")
	total := flag.Int("n", 100, "number of scripts to submit")
	rate := flag.Int("rate", 5, "submissions per second")
	flag.Parse()

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()

	client := &http.Client{Timeout: 10 * time.Second}
	var wg sync.WaitGroup
	var ok, failed, rejected atomic.Int64
	start := time.Now()

	for i := 1; i <= *total; i++ {
		<-ticker.C

		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			id, err := submit(client, *base)
			if err != nil {
				rejected.Add(1)
				fmt.Printf("Request %d: %v\n", n, err)
				return
			}

			st, err := poll(client, *base, id)
			if err != nil {
				failed.Add(1)
				fmt.Printf("Request %d (%s): %v\n", n, id, err)
				return
			}
			if st.Error {
				failed.Add(1)
			} else {
				ok.Add(1)
			}
			var ran time.Duration
			if st.TimeStarted != nil {
				ran = st.TimeCompleted.Sub(*st.TimeStarted)
			}
			fmt.Printf("Request %d (%s) -> error=%v, ran %s\n", n, id, st.Error, ran)
		}(i)
	}

	wg.Wait()
	fmt.Printf("done in %s: ok=%d failed=%d rejected=%d\n", time.Since(start), ok.Load(), failed.Load(), rejected.Load())
}

func submit(client *http.Client, base string) (string, error) {
	resp, err := client.Post(base+"/script", "text/plain", strings.NewReader(script))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func poll(client *http.Client, base, id string) (status, error) {
	deadline := time.Now().Add(5 * time.Minute)
	for time.Now().Before(deadline) {
		resp, err := client.Get(base + "/job/" + id + "/status")
		if err != nil {
			return status{}, err
		}
		var st status
		err = json.NewDecoder(resp.Body).Decode(&st)
		resp.Body.Close()
		if err != nil {
			return status{}, err
		}
		if st.TimeCompleted != nil {
			return st, nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	return status{}, fmt.Errorf("not completed after 5m")
}
