package marktde

// siteRoot prefixes root-relative tile URLs.
const siteRoot = "https://erotik.markt.de"

// Result page.
const (
	selResultItem = "li.clsy-c-result-list-item"
	attrTileTitle = "title"
	attrTileURL   = "data-onclick-url"
	selNextButton = "button.clsy-c-pagination__next"

	// adHostMarker identifies injected ad tiles that only look like results.
	adHostMarker = "feed.solads.media"
)

// Detail page.
const (
	selDetailLocation = "div.clsy-c-expose-details__location"
	selDetailDate     = "div.clsy-c-expose-details__date"
	selDetailBody     = "div#clsy-c-expose-body"
	selProfileName    = "div.clsy-c-userbox__profile-name"
	selAttrLabel      = "span.clsy-attribute-list__label"
	selAttrValue      = "span.clsy-attribute-list__description"
)

// Consent dialogs shown on the first visit.
const (
	cookieButtonXPath = `//button[contains(., 'AKZEPTIEREN UND WEITER')]`
	ageGateSelector   = "#btn-over-eighteen"
)
