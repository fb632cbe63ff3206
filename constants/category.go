package constants

type Category string

const (
	CloudServices        Category = "Cloud Services"
	Equipment            Category = "Equipment"
	Insurance            Category = "Insurance"
	Marketing            Category = "Marketing"
	Meals                Category = "Meals"
	OfficeSupplies       Category = "Office Supplies"
	ProfessionalServices Category = "Professional Services"
	RentAndFacilities    Category = "Rent & Facilities"
	Shipping             Category = "Shipping"
	SoftwareSubscription Category = "Software Subscription"
	Telecommunications   Category = "Telecommunications"
	Travel               Category = "Travel"
	Utilities            Category = "Utilities"
	GeneralExpense       Category = "General Expense"
	Uncategorized        Category = "Uncategorized"
)

// FallbackCategories is stored when the categorization stage fails outright.
var FallbackCategories = []string{string(Uncategorized)}

// DefaultCategories is stored when categorization succeeds but returns nothing usable.
var DefaultCategories = []string{string(GeneralExpense)}

var allCategories = []Category{
	CloudServices,
	Equipment,
	Insurance,
	Marketing,
	Meals,
	OfficeSupplies,
	ProfessionalServices,
	RentAndFacilities,
	Shipping,
	SoftwareSubscription,
	Telecommunications,
	Travel,
	Utilities,
	GeneralExpense,
	Uncategorized,
}

// AsStringSlice returns the suggested taxonomy as plain strings for prompt
// construction. The categorizer treats these as guidance, not a closed enum.
func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}
