package workflow

import (
	"fmt"

	"github.com/hormur/event-syndicator/internal/assets"
	"github.com/hormur/event-syndicator/internal/models"
)

// Contact details shown on JDS listings.
const (
	hormurPhone = "+33 7 82 57 93 78"
	hormurEmail = "contact@hormur.com"
)

// buttonText matches a button by its visible label.
func buttonText(label string) string {
	return fmt.Sprintf(`//button[normalize-space(.)=%q]`, label)
}

func eventimFooter(eventURL string) string {
	return "\n\n🎭 BILLETTERIE OFFICIELLE : HORMUR.COM 🎭\n" +
		"⚠️ Les réservations faites ici sont des PRÉ-RÉSERVATIONS uniquement.\n" +
		"✅ Pour obtenir vos billets valables, rendez-vous sur : " + eventURL + "\n" +
		"\n" +
		"📍 LIEU ATYPIQUE\n" +
		"Cet événement se déroule dans un lieu non conventionnel.\n" +
		"L'adresse exacte sera communiquée après réservation sur Hormur.com\n" +
		"\n" +
		"🎟️ COMMENT PARTICIPER ?\n" +
		"1. Pré-réservez ici gratuitement\n" +
		"2. Finalisez votre réservation sur Hormur.com\n" +
		"3. Recevez l'adresse exacte par email\n" +
		"\n" +
		"💡 Hormur - La plateforme qui connecte artistes et lieux atypiques"
}

func jdsFooter(eventURL string) string {
	return "\n\n━━━━━━━━━━━━━━━━━━━━━━\n" +
		"📍 RÉSERVATION OFFICIELLE SUR HORMUR.COM\n" +
		"━━━━━━━━━━━━━━━━━━━━━━\n" +
		"\n" +
		"Cette inscription sur JDS est une PRÉ-RÉSERVATION.\n" +
		"Pour valider votre participation et recevoir l'adresse exacte :\n" +
		"👉 " + eventURL + "\n" +
		"\n" +
		"✨ Hormur révolutionne l'expérience culturelle en proposant des événements dans des lieux insolites et intimes.\n" +
		"\n" +
		"ℹ️ L'adresse exacte sera communiquée uniquement aux personnes ayant réservé sur Hormur.com"
}

// Eventim publishes on Eventim Light.
func Eventim() Definition {
	return Definition{
		Platform: models.PlatformEventim,
		Name:     "Eventim Light",

		LoginURL: "https://www.eventim-light.com/fr/login",
		Consent:  `[data-testid="cookie-accept-all"]`,
		Login: []Step{
			TypeInto(`input[type="email"]`, Login),
			TypeInto(`input[type="password"]`, Secret),
			Click(`button[type="submit"]`),
		},

		FormURL:   "https://www.eventim-light.com/fr/evenements/nouveau",
		FormReady: `input[name="eventName"]`,
		Fields: []Step{
			TypeInto(`input[name="eventName"]`, Title),
			Choose(`select[name="genre"]`, Literal("Concerts & Festivals")),
			Choose(`select[name="subgenre"]`, Literal("Festivals")),
			Fill(`input[name="eventDate"]`, Date),
			TypeInto(`input[name="eventTime"]`, Time),
			TypeInto(`input[name="venueName"]`, Venue),
			TypeInto(`input[name="address"]`, Address),
			Click(`input[value="free"]`),
			Fill(`textarea[name="description"]`, Description),
		},

		Upload:    `input[type="file"]`,
		ImageSpec: assets.Square800,

		Submit:          []Step{Click(`button[type="submit"]`)},
		AwaitNavigation: true,

		Footer: eventimFooter,
	}
}

// JDS publishes on jds.fr.
func JDS() Definition {
	return Definition{
		Platform: models.PlatformJDS,
		Name:     "JDS",

		LoginURL: "https://www.jds.fr/organisateur/connexion",
		Login: []Step{
			TypeInto(`input[name="email"]`, Login),
			TypeInto(`input[name="password"]`, Secret),
			Click(`button[type="submit"]`),
		},

		FormURL:   "https://www.jds.fr/organisateur/ajouter-evenement",
		FormReady: `input[name="title"]`,
		Fields: []Step{
			TypeInto(`input[name="title"]`, Title),
			Choose(`select[name="eventType"]`, Category),
			Fill(`input[name="startDate"]`, Date),
			TypeInto(`input[name="startTime"]`, Time),
			TypeInto(`input[name="venue"]`, Venue),
			TypeInto(`input[name="address"]`, Address),
			Click(`input[id="free"]`),
			Fill(`textarea[name="description"]`, Description),
			Fill(`input[name="phone"]`, Literal(hormurPhone)),
			Fill(`input[name="email"]`, Literal(hormurEmail)),
			Fill(`input[name="website"]`, EventURL),
		},

		Upload:    `input[type="file"][name="image"]`,
		ImageSpec: assets.Square800,

		Submit:          []Step{Click(`button[name="publish"]`)},
		AwaitNavigation: true,

		Footer: jdsFooter,
	}
}

// AllEvents imports the event from its canonical URL instead of filling a form.
func AllEvents() Definition {
	return Definition{
		Platform: models.PlatformAllEvents,
		Name:     "AllEvents",

		LoginURL: "https://allevents.in/organizer/login",
		Login: []Step{
			Click(buttonText("Continue with Email")),
			TypeInto(`input[type="email"]`, Login),
			Click(buttonText("Continue")),
			TypeInto(`input[type="password"]`, Secret),
			Click(buttonText("Login")),
		},

		FormURL:   "https://allevents.in/organizer/create-event",
		FormReady: buttonText("Import from other platforms"),
		Fields: []Step{
			Click(buttonText("Import from other platforms")),
			TypeInto(`input[name="eventUrl"]`, EventURL),
			Click(buttonText("Import")),
			Wait(buttonText("Publish")),
		},

		Submit: []Step{Click(buttonText("Publish"))},
	}
}
