package poller

import "github.com/JakeFAU/progress-poller/internal/page"

// DocumentPage exposes an in-memory page.Document as a Page.
func DocumentPage(doc *page.Document) Page {
	return PageFunc(func(id string) (Element, error) {
		el, err := doc.Element(id)
		if err != nil {
			return nil, err
		}
		return el, nil
	})
}
