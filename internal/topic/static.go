package topic

import (
	"context"
	"sync"
)

// DefaultCatalog is the built-in topic rotation used when no model provider
// is configured
var DefaultCatalog = []Topic{
	{
		Title:         "Should remote work become the default for office jobs?",
		Description:   "Many companies are calling staff back to the office while others have gone fully distributed.",
		Category:      "economy",
		SupportPoints: []string{"No commute saves hours every week", "Hiring is no longer limited by geography", "Focus time improves away from open offices"},
		OpposePoints:  []string{"Mentoring juniors is harder over video", "Spontaneous collaboration disappears", "Work and home blur together"},
	},
	{
		Title:         "Should social media platforms verify the age of every user?",
		Description:   "Several governments are drafting rules that would require strict age checks online.",
		Category:      "tech",
		SupportPoints: []string{"Children are shielded from harmful content", "Platforms become accountable for their audience", "Parents get real enforcement instead of checkboxes"},
		OpposePoints:  []string{"Identity checks create privacy risks", "Anonymous speech becomes impossible", "Determined teens will route around it"},
	},
	{
		Title:         "Is nuclear power essential for reaching net zero?",
		Description:   "Countries disagree on whether new reactors belong in their climate plans.",
		Category:      "science",
		SupportPoints: []string{"It provides steady carbon-free baseload", "Modern designs are very safe", "Land use is tiny compared to alternatives"},
		OpposePoints:  []string{"New plants take decades and overrun budgets", "Waste storage is still unsolved", "Renewables plus storage are getting cheaper faster"},
	},
	{
		Title:         "Should college athletes be paid salaries by their schools?",
		Description:   "College sports generate billions while players receive scholarships rather than wages.",
		Category:      "sports",
		SupportPoints: []string{"Players generate the revenue", "Injuries can end careers with nothing to show", "Salaries would reduce shady side deals"},
		OpposePoints:  []string{"Smaller programs could not afford it", "It erodes the student part of student athlete", "Scholarships are already substantial compensation"},
	},
	{
		Title:         "Should AI-generated art be eligible for copyright?",
		Description:   "Courts and copyright offices are deciding whether works made with generative models can be owned.",
		Category:      "culture",
		SupportPoints: []string{"Prompting and curation are creative choices", "Without protection there is no incentive to invest", "Photography faced the same doubts once"},
		OpposePoints:  []string{"Copyright exists to reward human authorship", "Models are trained on unlicensed work", "It would flood registries with machine output"},
	},
	{
		Title:         "Should voting be mandatory in national elections?",
		Description:   "A few democracies fine citizens who skip elections; most leave it voluntary.",
		Category:      "politics",
		SupportPoints: []string{"Results reflect the whole population", "Campaigns must appeal beyond their base", "Turnout suppression tactics stop working"},
		OpposePoints:  []string{"Freedom includes the right not to participate", "Uninformed votes add noise", "Fines fall hardest on the poor"},
	},
	{
		Title:         "Should cities ban private cars from their centers?",
		Description:   "Car-free downtowns are spreading across European cities and being debated elsewhere.",
		Category:      "culture",
		SupportPoints: []string{"Cleaner air and fewer traffic deaths", "Streets become space for people", "Public transport gets the investment it needs"},
		OpposePoints:  []string{"Businesses lose customers who drive", "Disabled and elderly residents lose access", "Traffic just moves to the suburbs"},
	},
	{
		Title:         "Is a four-day work week better for the economy?",
		Description:   "Trials in several countries report stable output with one fewer working day.",
		Category:      "economy",
		SupportPoints: []string{"Rested workers are more productive", "Retention and hiring improve", "Lower burnout reduces health costs"},
		OpposePoints:  []string{"Many services need five days of coverage", "Compressed hours increase daily stress", "Trials select companies likely to succeed"},
	},
}

// StaticProvider rotates through a fixed catalog, skipping topics similar
// to recently used ones
type StaticProvider struct {
	mu      sync.Mutex
	catalog []Topic
	next    int
	history History
}

var _ Provider = (*StaticProvider)(nil)

// NewStaticProvider creates a provider over catalog. A nil catalog uses
// DefaultCatalog; history may be nil.
func NewStaticProvider(catalog []Topic, history History) *StaticProvider {
	if catalog == nil {
		catalog = DefaultCatalog
	}
	return &StaticProvider{catalog: catalog, history: history}
}

// GetDailyTopic implements Provider. It returns ErrNoTopic when every
// catalog entry repeats a recent title.
func (p *StaticProvider) GetDailyTopic(ctx context.Context) (*Topic, error) {
	recent := recentTitles(ctx, p.history)

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < len(p.catalog); i++ {
		candidate := p.catalog[(p.next+i)%len(p.catalog)]
		if IsRepeat(candidate.Title, recent) {
			continue
		}
		p.next = (p.next + i + 1) % len(p.catalog)

		topic := candidate
		topic.SupportPoints = append([]string(nil), candidate.SupportPoints...)
		topic.OpposePoints = append([]string(nil), candidate.OpposePoints...)
		if topic.Source == "" {
			topic.Source = "editorial"
		}
		return &topic, nil
	}
	return nil, ErrNoTopic
}
