// Package httpclient opens chunked streaming responses from the generation
// API.
//
// Only stream establishment is protected: the request passes a client-side
// rate limiter, a circuit breaker and go-retryablehttp's connection retry.
// Once headers arrive the raw body is handed to the caller unparsed and the
// transfer is bounded only by the request context.
//
// Example Usage:
//
//	client := httpclient.New(httpclient.DefaultConfig(), logger)
//	resp, err := client.OpenStream(ctx, httpclient.StreamRequest{
//		URL:   apiBase + "/stream/article",
//		Token: token,
//		Body:  req,
//	})
//	if err != nil {
//		return err
//	}
//	defer resp.Body.Close()
package httpclient
