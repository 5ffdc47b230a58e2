package domain

// Item is a product entry held in the cart.
type Item struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// ItemDetails describes a product being added to the cart. The cart owns the quantity.
type ItemDetails struct {
	ID       string  `json:"id" validate:"required"`
	Title    string  `json:"title" validate:"required"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price" validate:"gte=0"`
}

// NewItem creates a cart entry with quantity 1
func NewItem(d ItemDetails) Item {
	return Item{
		ID:       d.ID,
		Title:    d.Title,
		ImageURL: d.ImageURL,
		Price:    d.Price,
		Quantity: 1,
	}
}
