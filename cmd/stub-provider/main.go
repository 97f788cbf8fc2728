package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
)

func main() {
	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║  WARNING: This is a STUB PROVIDER for local testing ONLY. ║")
	log.Println("║  It serves canned inbox messages and call transcripts.    ║")
	log.Println("║                                                           ║")
	log.Println("║  Point the engine at it with:                             ║")
	log.Println("║    EMAIL_CHANNEL_BASE_URL=http://localhost:8091           ║")
	log.Println("║    CALLS_CHANNEL_BASE_URL=http://localhost:8091           ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")
	log.Println("")
	log.Println("Starting Radiant stub provider (canned responses)...")

	port := os.Getenv("PORT")
	if port == "" {
		port = "8091"
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"radiant-stub-provider","warning":"THIS IS A STUB - responses are canned"}`))
	})

	// Mail provider surface (Bearer auth).
	mux.HandleFunc("GET /v1/inbox", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
			return
		}
		page, next := paginate(len(stubMessages), r)
		writeJSON(w, map[string]interface{}{
			"messages":    stubMessages[page[0]:page[1]],
			"next_cursor": next,
		})
	})

	mux.HandleFunc("POST /v1/messages/{id}/reply", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
			return
		}
		var reply struct {
			Subject string `json:"subject"`
			Body    string `json:"body"`
		}
		if err := json.NewDecoder(r.Body).Decode(&reply); err != nil {
			http.Error(w, `{"error":"bad payload"}`, http.StatusBadRequest)
			return
		}
		log.Printf("[stub] Email reply to %s: %q", r.PathValue("id"), reply.Subject)
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"status":"queued"}`))
	})

	// Call platform surface (X-API-Key auth).
	mux.HandleFunc("GET /v2/transcripts", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") == "" {
			http.Error(w, `{"error":"missing api key"}`, http.StatusUnauthorized)
			return
		}
		page, next := paginate(len(stubTranscripts), r)
		writeJSON(w, map[string]interface{}{
			"transcripts": stubTranscripts[page[0]:page[1]],
			"next_cursor": next,
		})
	})

	mux.HandleFunc("POST /v2/calls/{id}/text", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") == "" {
			http.Error(w, `{"error":"missing api key"}`, http.StatusUnauthorized)
			return
		}
		var text struct {
			Body string `json:"body"`
		}
		if err := json.NewDecoder(r.Body).Decode(&text); err != nil {
			http.Error(w, `{"error":"bad payload"}`, http.StatusBadRequest)
			return
		}
		log.Printf("[stub] Text follow-up to call %s (%d chars)", r.PathValue("id"), len(text.Body))
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"status":"queued"}`))
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Stub provider listening on :%s (%d messages, %d transcripts)",
			port, len(stubMessages), len(stubTranscripts))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Stub provider failed: %v", err)
		}
	}()

	<-done
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Stub provider stopped")
}

// paginate reads limit and cursor from the query and returns the slice
// bounds plus the cursor for the following page. The cursor is a plain
// offset; past the tail it sticks so repeated pulls see an empty page.
func paginate(total int, r *http.Request) ([2]int, string) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	start, _ := strconv.Atoi(r.URL.Query().Get("cursor"))
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return [2]int{start, end}, strconv.Itoa(end)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[stub] Encode failed: %v", err)
	}
}

func confidence(v float64) *float64 { return &v }

func ago(d time.Duration) string {
	return time.Now().Add(-d).UTC().Format(time.RFC3339)
}

type stubClassification struct {
	Category   string   `json:"category"`
	Priority   string   `json:"priority"`
	Risk       string   `json:"risk"`
	Confidence *float64 `json:"confidence,omitempty"`
	Reasons    []string `json:"reasons"`
}

type stubReply struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type stubMessage struct {
	ID             string             `json:"id"`
	From           string             `json:"from"`
	Subject        string             `json:"subject"`
	Snippet        string             `json:"snippet"`
	Body           string             `json:"body"`
	Classification stubClassification `json:"classification"`
	SuggestedReply *stubReply         `json:"suggested_reply,omitempty"`
	ReceivedAt     string             `json:"received_at"`
}

type stubText struct {
	Body string `json:"body"`
}

type stubTranscript struct {
	ID             string             `json:"id"`
	Caller         string             `json:"caller"`
	Summary        string             `json:"summary"`
	Transcript     string             `json:"transcript"`
	Classification stubClassification `json:"classification"`
	SuggestedText  *stubText          `json:"suggested_text,omitempty"`
	EndedAt        string             `json:"ended_at"`
}

// Canned data covering the classification spread: auto-sendable
// scheduling mail, review-worthy billing, blocked clinical content, and
// an unclassified straggler with no confidence score.
var stubMessages = []stubMessage{
	{
		ID: "stub-em-001", From: "casey.rivera@example.com",
		Subject: "Reschedule Thursday?", Snippet: "Something came up at work",
		Body: "Hi, something came up at work. Could we move my Thursday cleaning to Friday morning?",
		Classification: stubClassification{
			Category: "scheduling", Priority: "normal", Risk: "safe",
			Confidence: confidence(0.96), Reasons: []string{"appointment_keywords"},
		},
		SuggestedReply: &stubReply{
			Subject: "Re: Reschedule Thursday?",
			Body:    "Of course. We have Friday 9:30am or 11:00am open. Reply with the one that works and we'll move you over.",
		},
		ReceivedAt: ago(40 * time.Minute),
	},
	{
		ID: "stub-em-002", From: "jordan.lee@example.com",
		Subject: "Intake forms", Snippet: "Where do I find the new patient forms",
		Body: "Where do I find the new patient forms for my first visit on Monday?",
		Classification: stubClassification{
			Category: "general", Priority: "normal", Risk: "safe",
			Confidence: confidence(0.91), Reasons: []string{"faq_match"},
		},
		SuggestedReply: &stubReply{
			Subject: "Re: Intake forms",
			Body:    "They're linked from your patient portal home page under Documents. Bring a photo ID to your first visit.",
		},
		ReceivedAt: ago(2 * time.Hour),
	},
	{
		ID: "stub-em-003", From: "sam.okafor@example.com",
		Subject: "Charged twice this month", Snippet: "My card shows two charges",
		Body: "My card statement shows two charges from you this month. Can someone look into this?",
		Classification: stubClassification{
			Category: "billing", Priority: "high", Risk: "needs_review",
			Confidence: confidence(0.88), Reasons: []string{"billing_keywords", "complaint_tone"},
		},
		ReceivedAt: ago(3 * time.Hour),
	},
	{
		ID: "stub-em-004", From: "alex.chen@example.com",
		Subject: "Pain after procedure", Snippet: "The area is still swollen and",
		Body: "The area is still swollen and the pain medication isn't helping. Should I increase the dose?",
		Classification: stubClassification{
			Category: "clinical", Priority: "urgent", Risk: "blocked",
			Confidence: confidence(0.97), Reasons: []string{"medication_question", "symptom_report"},
		},
		ReceivedAt: ago(20 * time.Minute),
	},
	{
		ID: "stub-em-005", From: "noreply@partners.example.net",
		Subject: "Quarterly newsletter opportunities", Snippet: "Dear valued partner",
		Body: "Dear valued partner, we wanted to share our quarterly advertising opportunities with you.",
		Classification: stubClassification{
			Category: "other", Priority: "low", Risk: "needs_review",
			Reasons: []string{"classifier_abstained"},
		},
		ReceivedAt: ago(26 * time.Hour),
	},
}

var stubTranscripts = []stubTranscript{
	{
		ID: "stub-call-001", Caller: "+15550142",
		Summary:    "Caller asked to confirm Tuesday appointment time",
		Transcript: "Hi, I just wanted to double check my appointment Tuesday. Was it 2pm or 2:30? ... Great, thanks.",
		Classification: stubClassification{
			Category: "scheduling", Priority: "normal", Risk: "safe",
			Confidence: confidence(0.93), Reasons: []string{"appointment_keywords"},
		},
		SuggestedText: &stubText{
			Body: "Confirming your appointment Tuesday at 2:00pm. Reply CHANGE if you need a different time.",
		},
		EndedAt: ago(90 * time.Minute),
	},
	{
		ID: "stub-call-002", Caller: "+15550198",
		Summary:    "Caller described worsening symptoms after last week's visit",
		Transcript: "I was in last week and honestly it feels worse now. There's a throbbing that wasn't there before...",
		Classification: stubClassification{
			Category: "clinical", Priority: "urgent", Risk: "blocked",
			Confidence: confidence(0.95), Reasons: []string{"symptom_report"},
		},
		EndedAt: ago(50 * time.Minute),
	},
	{
		ID: "stub-call-003", Caller: "+15550173",
		Summary:    "Caller asked about parking and office hours",
		Transcript: "Quick question, is there parking at the new building? And are you open Saturdays? ... Perfect.",
		Classification: stubClassification{
			Category: "general", Priority: "low", Risk: "safe",
			Confidence: confidence(0.89), Reasons: []string{"faq_match"},
		},
		SuggestedText: &stubText{
			Body: "Free patient parking is behind the building (enter from Oak St). We're open Saturdays 9am to 1pm.",
		},
		EndedAt: ago(5 * time.Hour),
	},
}
