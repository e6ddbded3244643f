// Package webhook accepts HMAC-signed HTTP requests and pushes each body as
// a task onto a bound queue.
//
// Every endpoint names one queue and a shared secret. Requests are rejected
// with a generic 403 unless the signature header carries a valid
// HMAC-SHA256 of the raw body, either "sha256=<hex>" or plain hex.
//
//	webhooks:
//	  listen: "127.0.0.1:8081"
//	  endpoints:
//	    - path: /hooks/deploy
//	      queue: deploy
//	      secret: ${DEPLOY_HOOK_SECRET}
//	      signature_header: X-Hub-Signature-256
//	      max_body_size: 1MB
//	      rate_limit: 2      # verified requests per second
//	      rate_burst: 5
//
// A JSON body becomes the task's single argument; any other body is passed
// as a string. A pushed task is answered with 202 and its id and ref.
//
// Responses: 403 bad or missing signature, 404 unknown path, 413 body over
// max_body_size, 429 over rate_limit, 503 registry closed, 500 any other
// push failure.
package webhook
