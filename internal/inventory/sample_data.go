package inventory

import "pharmacy_inventory/internal/model"

// SampleProducts seeds an empty store for demos.
var SampleProducts = []model.Product{
	{Name: "Lisinopril", Price: 25.99, Quantity: 120},
	{Name: "Atorvastatin", Price: 45.50, Quantity: 90},
	{Name: "Metformin", Price: 12.75, Quantity: 200},
	{Name: "Albuterol Inhaler", Price: 62.30, Quantity: 50},
	{Name: "Omeprazole", Price: 18.95, Quantity: 150},
	{Name: "Levothyroxine", Price: 22.40, Quantity: 110},
	{Name: "Simvastatin", Price: 28.60, Quantity: 85},
	{Name: "Losartan", Price: 32.25, Quantity: 95},
	{Name: "Acetaminophen", Price: 8.99, Quantity: 300},
	{Name: "Diphenhydramine", Price: 14.50, Quantity: 180},
	{Name: "Loratadine", Price: 16.75, Quantity: 160},
	{Name: "Hydrochlorothiazide", Price: 19.99, Quantity: 130},
	{Name: "Vitamin D3", Price: 11.25, Quantity: 240},
	{Name: "Melatonin", Price: 13.50, Quantity: 190},
	{Name: "Cetirizine", Price: 15.20, Quantity: 170},
	{Name: "Amoxicillin", Price: 27.80, Quantity: 75},
	{Name: "Azithromycin", Price: 38.90, Quantity: 60},
	{Name: "Ciprofloxacin", Price: 34.25, Quantity: 55},
	{Name: "Doxycycline", Price: 29.99, Quantity: 70},
	{Name: "Fluoxetine", Price: 21.50, Quantity: 100},
	{Name: "Sertraline", Price: 24.75, Quantity: 95},
	{Name: "Pantoprazole", Price: 19.45, Quantity: 120},
	{Name: "Montelukast", Price: 32.60, Quantity: 80},
	{Name: "Prednisone", Price: 15.80, Quantity: 110},
	{Name: "Tramadol", Price: 42.30, Quantity: 40},
	{Name: "Naproxen", Price: 10.99, Quantity: 200},
	{Name: "Ibuprofen", Price: 9.75, Quantity: 250},
	{Name: "Aspirin", Price: 7.50, Quantity: 300},
	{Name: "Calcium Carbonate", Price: 12.40, Quantity: 180},
	{Name: "Magnesium Supplement", Price: 14.90, Quantity: 150},
	{Name: "Multivitamin", Price: 16.25, Quantity: 170},
}
