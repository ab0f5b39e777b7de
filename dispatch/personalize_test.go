package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fidelity/config"
	"fidelity/entity"
	"fidelity/pkg/goutil"
)

func testPersonalizer() *Personalizer {
	return NewPersonalizer(config.Personalize{
		DefaultDiscount:     "20%",
		DefaultDiscountCode: "WELCOME20",
		ExpiryDays:          7,
	}, NewClassifier(testSegmentsConfig()))
}

func TestPersonalizerRender(t *testing.T) {
	var (
		p   = testPersonalizer()
		now = time.Date(2026, 3, 15, 10, 0, 0, 0, time.Local)
	)

	customer := &entity.Customer{
		Name:   goutil.String("Giulia"),
		Email:  goutil.String("giulia@example.com"),
		Points: goutil.Uint64(320),
	}

	content := "Ciao {{nome}} ({{email}}), hai {{gemme}} gemme e sei {{livello}}. " +
		"Oggi: {{data_oggi}}. Scade: {{data_scadenza}}. Prossimo mese: {{data_prossimo_mese}}. " +
		"Usa {{codice_sconto}} per {{sconto}} di sconto."

	got := p.Render(content, customer, nil, now)

	assert.Equal(t,
		"Ciao Giulia (giulia@example.com), hai 320 gemme e sei gold. "+
			"Oggi: 15/03/2026. Scade: 22/03/2026. Prossimo mese: 15/04/2026. "+
			"Usa WELCOME20 per 20% di sconto.",
		got)
}

func TestPersonalizerPromoOverride(t *testing.T) {
	var (
		p   = testPersonalizer()
		now = time.Now()
	)

	customer := &entity.Customer{Name: goutil.String("Giulia")}

	got := p.Render("{{sconto}} / {{codice_sconto}}", customer, &Promo{
		Discount:     "30%",
		DiscountCode: "VIP30",
	}, now)
	assert.Equal(t, "30% / VIP30", got)

	// empty override fields fall back to the defaults
	got = p.Render("{{sconto}} / {{codice_sconto}}", customer, &Promo{Discount: "30%"}, now)
	assert.Equal(t, "30% / WELCOME20", got)
}

func TestPersonalizerUnknownTokensVerbatim(t *testing.T) {
	var (
		p   = testPersonalizer()
		now = time.Now()
	)

	got := p.Render("Hello {{unknown_token}}!", &entity.Customer{}, nil, now)
	assert.Equal(t, "Hello {{unknown_token}}!", got)
}

func TestPersonalizerDeterministic(t *testing.T) {
	var (
		p   = testPersonalizer()
		now = time.Date(2026, 1, 31, 23, 59, 0, 0, time.Local)
	)

	customer := &entity.Customer{
		Name:   goutil.String("Marco"),
		Points: goutil.Uint64(90),
	}

	content := "{{nome}} {{livello}} {{data_oggi}} {{data_scadenza}}"
	first := p.Render(content, customer, nil, now)
	second := p.Render(content, customer, nil, now)
	assert.Equal(t, first, second)
}

func TestPersonalizerMissingFieldsRenderEmpty(t *testing.T) {
	p := testPersonalizer()

	got := p.Render("[{{nome}}] has {{gemme}} points", &entity.Customer{}, nil, time.Now())
	assert.Equal(t, "[] has 0 points", got)
}
