package dispatch

import (
	"strconv"
	"strings"
	"time"

	"fidelity/config"
	"fidelity/entity"
)

const dateLayout = "02/01/2006"

// Promo overrides the configured discount defaults for one campaign.
type Promo struct {
	Discount     string
	DiscountCode string
}

// Personalizer substitutes the supported placeholders in campaign content.
// Unknown placeholders pass through verbatim, a typo in a template shows up
// in the email instead of failing the send.
type Personalizer struct {
	cfg        config.Personalize
	classifier *Classifier
}

func NewPersonalizer(cfg config.Personalize, classifier *Classifier) *Personalizer {
	return &Personalizer{
		cfg:        cfg,
		classifier: classifier,
	}
}

// Render substitutes every supported placeholder for the given customer.
// The caller supplies now, so rendering is pure: identical arguments always
// produce identical output.
func (p *Personalizer) Render(content string, customer *entity.Customer, promo *Promo, now time.Time) string {
	discount := p.cfg.DefaultDiscount
	discountCode := p.cfg.DefaultDiscountCode
	if promo != nil {
		if promo.Discount != "" {
			discount = promo.Discount
		}
		if promo.DiscountCode != "" {
			discountCode = promo.DiscountCode
		}
	}

	replacer := strings.NewReplacer(
		"{{nome}}", customer.GetName(),
		"{{email}}", customer.GetEmail(),
		"{{gemme}}", strconv.FormatUint(customer.GetPoints(), 10),
		"{{livello}}", string(p.classifier.Tier(customer.GetPoints())),
		"{{data_oggi}}", now.Format(dateLayout),
		"{{data_scadenza}}", now.AddDate(0, 0, p.cfg.ExpiryDays).Format(dateLayout),
		"{{data_prossimo_mese}}", now.AddDate(0, 1, 0).Format(dateLayout),
		"{{sconto}}", discount,
		"{{codice_sconto}}", discountCode,
	)

	return replacer.Replace(content)
}
