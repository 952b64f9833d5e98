package analyzer

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/seo-optimizer/insights/credentials"
	"github.com/seo-optimizer/insights/metrics"
	"github.com/seo-optimizer/insights/models"
	"github.com/seo-optimizer/insights/page"
	"github.com/seo-optimizer/insights/pagespeed"
	"github.com/seo-optimizer/insights/stats"
	"github.com/seo-optimizer/insights/urlkey"
)

// pageInsights returns the SEO and performance half of a report, and a
// notice when synthetic data had to be used.
func (a *Analyzer) pageInsights(ctx context.Context, log logrus.FieldLogger, pageURL string, strategy models.Strategy, userID string) (models.PageInsightsResult, string) {
	var res models.PageInsightsResult
	err := guard(func() error {
		apiKey := a.credential(ctx, log, userID, credentials.ProviderPageSpeed)
		payload, err := a.payload(ctx, pageURL, strategy, apiKey)
		if err != nil {
			return err
		}
		res = pagespeed.Normalize(payload, pageURL, strategy, a.now())
		return nil
	})
	if err == nil {
		return res, ""
	}
	a.fellBack(log, "pagespeed", err)
	return a.synth.PageInsights(pageURL, strategy), notice("Performance and SEO", err)
}

// payload serves a raw report from the payload cache or the fetcher.
func (a *Analyzer) payload(ctx context.Context, pageURL string, strategy models.Strategy, apiKey string) (*pagespeed.Payload, error) {
	key, err := urlkey.Key(PayloadNamespace, pageURL, strategy)
	if err != nil {
		return nil, err
	}
	if entry, ok := a.payloads.Get(ctx, key); ok {
		a.stats.Record(stats.Delta{PayloadCacheHits: 1})
		p := entry.Payload
		return &p, nil
	}
	a.stats.Record(stats.Delta{PayloadCacheMisses: 1})

	if apiKey != "" {
		a.stats.Record(stats.Delta{UpstreamCalls: 1})
		metrics.IncUpstreamCall()
	}
	p, err := a.fetcher.Fetch(ctx, pageURL, strategy, apiKey)
	if err != nil {
		if apiKey != "" {
			metrics.IncUpstreamError()
		}
		return nil, err
	}
	a.payloads.Put(ctx, key, *p)
	return p, nil
}

// aiReadability returns the AI half of a report. The page snapshot is
// returned whenever the page could be downloaded, even if the AI call failed.
func (a *Analyzer) aiReadability(ctx context.Context, log logrus.FieldLogger, pageURL, userID string) (models.AioResult, *page.Snapshot, string) {
	var (
		res  models.AioResult
		snap *page.Snapshot
	)
	err := guard(func() error {
		if a.content == nil || a.pages == nil {
			return fmt.Errorf("%w: content analysis is not configured", models.ErrMissingCredential)
		}
		apiKey := a.credential(ctx, log, userID, credentials.ProviderAI)
		if apiKey == "" {
			return models.ErrMissingCredential
		}
		var err error
		snap, err = a.pages.Fetch(ctx, pageURL)
		if err != nil {
			return err
		}
		a.stats.Record(stats.Delta{UpstreamCalls: 1})
		metrics.IncUpstreamCall()
		res, err = a.content.Analyze(ctx, pageURL, snap.Text, apiKey)
		if err != nil {
			metrics.IncUpstreamError()
		}
		return err
	})
	if err == nil {
		return res, snap, ""
	}
	a.fellBack(log, "aio", err)
	return a.synth.Aio(pageURL), snap, notice("AI readability", err)
}

// credential returns the user's key for provider, or "" when there is none.
// Lookup failures are treated like a missing key.
func (a *Analyzer) credential(ctx context.Context, log logrus.FieldLogger, userID string, provider credentials.Provider) string {
	key, err := a.creds.Lookup(ctx, userID, provider)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			log.WithError(err).WithField("provider", provider).Warn("credential lookup failed")
		}
		return ""
	}
	return key
}

func (a *Analyzer) fellBack(log logrus.FieldLogger, service string, err error) {
	reason := fallbackReason(err)
	a.stats.Record(stats.Delta{Fallbacks: 1})
	metrics.IncFallback(reason)

	entry := log.WithFields(logrus.Fields{"service": service, "reason": reason, "source": models.SourceSynthetic})
	if errors.Is(err, models.ErrMissingCredential) {
		entry.Info("no credential, using synthetic data")
		return
	}
	entry.WithError(err).Warn("upstream unavailable, using synthetic data")
}

func notice(label string, err error) string {
	var why string
	switch fallbackReason(err) {
	case "missing_credential":
		why = "no API key is configured"
	case "timeout":
		why = "the service did not answer in time"
	case "upstream_error":
		why = "the service returned an error"
	default:
		why = "the service could not be reached"
	}
	return fmt.Sprintf("%s data is estimated because %s.", label, why)
}
