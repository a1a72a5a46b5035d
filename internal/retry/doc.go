// Package retry provides the backoff strategies and the context-aware wait
// used between Vault request attempts.
//
// # Usage
//
//	backoff := retry.NewConstantBackoff(time.Second)
//	for attempt := 0; ; attempt++ {
//	    if attempt > 0 {
//	        if err := retry.Wait(ctx, backoff.Next(attempt)); err != nil {
//	            return err
//	        }
//	    }
//	    ...
//	}
package retry
