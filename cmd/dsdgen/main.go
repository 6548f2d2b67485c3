// dsdgen sends synthetic statsd datagrams to a running agent, useful for
// exercising the ingestion pipeline under load.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
)

func buildDatagram(tags string) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("dsdgen.requests:%d|c%s", rand.Intn(10)+1, tags))
	lines = append(lines, fmt.Sprintf("dsdgen.queue_depth:%d|g%s", rand.Intn(100), tags))
	lines = append(lines, fmt.Sprintf("dsdgen.request_latency:%.4f|d%s", rand.Float64()*500, tags))
	return strings.Join(lines, "\n")
}

func worker(addr string, jobs <-chan string, wg *sync.WaitGroup) {
	defer wg.Done()
	conn, err := net.Dial("udp", addr)
	if err != nil {
		log.Printf("Error dialing %s: %v", addr, err)
		return
	}
	defer conn.Close()
	for job := range jobs {
		if _, err := conn.Write([]byte(job)); err != nil {
			log.Printf("Error sending datagram: %v", err)
		}
	}
}

func main() {
	addr := flag.String("addr", "localhost:8125", "agent address")
	interval := flag.Duration("interval", 100*time.Millisecond, "delay between datagrams")
	count := flag.Int("count", 0, "number of datagrams to send, 0 means until interrupted")
	workers := flag.Int("workers", 2, "number of sender workers")
	tags := flag.String("tags", "", "comma-separated tags added to every line")
	flag.Parse()

	tagSuffix := ""
	if *tags != "" {
		tagSuffix = "|#" + *tags
	}

	jobs := make(chan string, 20)
	var wg sync.WaitGroup
	for w := 1; w <= *workers; w++ {
		wg.Add(1)
		go worker(*addr, jobs, &wg)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sent := 0
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ticker.C:
			jobs <- buildDatagram(tagSuffix)
			sent++
			if *count > 0 && sent >= *count {
				break loop
			}
		case <-sigChan:
			break loop
		}
	}

	close(jobs)
	wg.Wait()
	log.Printf("Sent %d datagrams to %s", sent, *addr)
}
